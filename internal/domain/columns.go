package domain

// Column headers as they appear in the dispatch extract and in generated reports.
const (
	ColPlant          = "Plant"
	ColPlantName      = "Plant_Name"
	ColLocation       = "Location"
	ColZone           = "Zone"
	ColRM             = "RM"
	ColCustomerNo     = "Customer_No"
	ColCustomerName   = "Customer_Name"
	ColCustomerCity   = "Customer_City"
	ColBillingDate    = "Billing_Date"
	ColBillingDoc     = "Billing_Doc"
	ColBillAmount     = "Bill_Amount"
	ColGrossWeight    = "Gross_Weight"
	ColDispatchDate   = "Dispatch_Date"
	ColDispatchRemark = "Disptch_Remark"
	ColRSMName        = "RSM_Name"
	ColASMName        = "ASM_Name"
	ColLocalUpcountry = "Local/Upcountry"
	ColDays           = "Days"
	ColYear           = "Year"

	// derived
	ColPendingDays         = "Pending Days"
	ColWeightTons          = "Gross_Weight_Tons"
	ColMonth               = "Month"
	ColPriorRemark         = "Yesterday Remarks"
	ColPriorStandardRemark = "Yesterday Standard Remarks"
	ColInvoiceCount        = "Invoice Count"
)

// Mapping workbook headers (matched case-insensitively).
const (
	MapPlant     = "PLANT"
	MapLocation  = "LOCATION"
	MapZone      = "ZONE"
	MapRM        = "RM"
	MapPlantName = "PLANT_NAME"

	RecipientTarget = "Target"
	RecipientEmail  = "Email"
	RecipientCC     = "CC"

	SnapshotStandardMarker = "Standard"
)

// GrandTotal labels the synthetic total row and column of the aggregates.
const GrandTotal = "Grand Total"

// BlankLabel stands in for a missing grouping key.
const BlankLabel = "(blank)"

// RequiredRawColumns must be present in the dispatch extract.
var RequiredRawColumns = []string{
	ColPlant, ColPlantName, ColBillingDoc, ColBillingDate, ColDispatchDate,
	ColBillAmount, ColGrossWeight, ColRSMName,
}

// TextColumns are carried through from the extract verbatim.
var TextColumns = []string{
	ColCustomerNo, ColCustomerName, ColCustomerCity, ColDispatchRemark,
	ColASMName, ColLocalUpcountry, ColDays, ColYear,
}

// PendingColumns is the fixed column order of the pending cohort.
var PendingColumns = []string{
	ColPlant, ColLocation, ColCustomerNo, ColCustomerName,
	ColBillingDate, ColBillingDoc, ColBillAmount,
	ColPendingDays, ColDispatchRemark, ColPriorRemark,
	ColPriorStandardRemark, ColRSMName, ColASMName, ColRM, ColWeightTons,
}

// DeliveredColumns is the fixed column order of the POD cohort.
var DeliveredColumns = []string{
	ColPlant, ColLocation, ColBillingDate, ColMonth, ColDays, ColYear,
	ColBillingDoc, ColCustomerNo, ColCustomerName,
	ColCustomerCity, ColLocalUpcountry, ColASMName, ColRSMName,
	ColBillAmount, ColDispatchDate, ColDispatchRemark, ColRM,
}
