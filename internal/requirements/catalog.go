package requirements

import "benchline/internal/domain"

func num(v float64) *float64 {
	return &v
}

func length(v int) *int {
	return &v
}

var metalOptions = []string{"18K Gold", "14K Gold", "22K Gold", "Silver 925", "Platinum 950"}

// catalog is the exhaustive department to schema table. NewRegistry refuses to
// start when a department is missing here.
var catalog = map[domain.Department]Schema{
	domain.DepartmentCAD: {
		Title: "Design / CAD",
		Instructions: []string{
			"Model the piece from the approved sketch and customer measurements.",
			"Export the print-ready model and attach rendered views for approval.",
		},
		Fields: []FormField{
			{Name: "designCode", Label: "Design code", Type: FieldText, Required: true, MinLength: length(3), MaxLength: length(40), Core: true},
			{Name: "ringSize", Label: "Ring size", Type: FieldText, MaxLength: length(10)},
			{Name: "estimatedMetalWeight", Label: "Estimated metal weight", Type: FieldNumber, Unit: "g", Min: num(0.1), Max: num(500)},
			{Name: "customerApproved", Label: "Customer approved design", Type: FieldCheckbox, Required: true, Core: true},
			{Name: "designNotes", Label: "Design notes", Type: FieldTextarea, MaxLength: length(2000)},
		},
		Photos: []PhotoRequirement{
			{Name: "renderViews", Label: "Rendered views", Required: true, MinCount: 2, MaxCount: 6},
		},
		Files: []FileRequirement{
			{Name: "cadModel", Label: "CAD model", Required: true, AcceptedFormats: []string{".stl", ".3dm", ".obj"}, MaxSizeMB: 50},
		},
	},
	domain.DepartmentPrinting: {
		Title: "3D Printing",
		Instructions: []string{
			"Print the model in castable resin and remove all supports.",
			"Inspect the print for layer lines before handing over to casting.",
		},
		Fields: []FormField{
			{Name: "printer", Label: "Printer", Type: FieldSelect, Required: true, Options: []string{"Form 3B", "Asiga Max", "Phrozen Sonic"}, Core: true},
			{Name: "resinType", Label: "Resin", Type: FieldSelect, Required: true, Options: []string{"Castable Wax", "Castable Resin", "Standard"}},
			{Name: "printDurationHours", Label: "Print duration", Type: FieldNumber, Unit: "h", Required: true, Min: num(0.1), Max: num(72)},
			{Name: "supportsRemoved", Label: "Supports removed", Type: FieldCheckbox, Required: true, Core: true},
		},
		Photos: []PhotoRequirement{
			{Name: "printedModel", Label: "Printed model", Required: true, MinCount: 1, MaxCount: 4},
		},
		Files: []FileRequirement{},
	},
	domain.DepartmentCasting: {
		Title: "Casting",
		Instructions: []string{
			"Invest the tree, burn out and cast in the specified alloy.",
			"Weigh the piece after devesting and photograph it from two sides.",
		},
		Fields: []FormField{
			{Name: "metalType", Label: "Metal type", Type: FieldSelect, Required: true, Options: metalOptions, Core: true},
			{Name: "metalWeight", Label: "Metal weight", Type: FieldNumber, Unit: "g", Required: true, Min: num(0.1), Max: num(500), Core: true},
			{Name: "flaskNumber", Label: "Flask number", Type: FieldText, MaxLength: length(20)},
			{Name: "castingNotes", Label: "Casting notes", Type: FieldTextarea, MaxLength: length(1000)},
		},
		Photos: []PhotoRequirement{
			{Name: "castedPiece", Label: "Casted piece", Required: true, MinCount: 2, MaxCount: 6},
		},
		Files: []FileRequirement{},
	},
	domain.DepartmentFilling: {
		Title: "Filling",
		Instructions: []string{
			"Remove sprues, file the surface and fix any porosity.",
		},
		Fields: []FormField{
			{Name: "weightAfterFilling", Label: "Weight after filling", Type: FieldNumber, Unit: "g", Required: true, Min: num(0.1), Max: num(500), Core: true},
			{Name: "porosityFixed", Label: "Porosity fixed", Type: FieldCheckbox, Required: true},
			{Name: "fillingNotes", Label: "Notes", Type: FieldTextarea, MaxLength: length(1000)},
		},
		Photos: []PhotoRequirement{
			{Name: "filledPiece", Label: "Filled piece", Required: true, MinCount: 1, MaxCount: 4},
		},
		Files: []FileRequirement{},
	},
	domain.DepartmentEnameling: {
		Title: "Enameling",
		Instructions: []string{
			"Apply enamel in the colours on the job card and fire each layer.",
		},
		Fields: []FormField{
			{Name: "enamelColors", Label: "Enamel colours", Type: FieldText, Required: true, MinLength: length(2), MaxLength: length(200), Core: true},
			{Name: "kilnTemperature", Label: "Kiln temperature", Type: FieldNumber, Unit: "°C", Required: true, Min: num(600), Max: num(900)},
			{Name: "layers", Label: "Layers fired", Type: FieldNumber, Min: num(1), Max: num(10)},
			{Name: "firedOn", Label: "Fired on", Type: FieldDate},
		},
		Photos: []PhotoRequirement{
			{Name: "enameledPiece", Label: "Enameled piece", Required: true, MinCount: 2, MaxCount: 6},
		},
		Files: []FileRequirement{},
	},
	domain.DepartmentPrePolishing: {
		Title: "Pre-Polishing",
		Instructions: []string{
			"Sand and pre-polish all surfaces that will carry stones.",
		},
		Fields: []FormField{
			{Name: "weightAfterPrePolish", Label: "Weight after pre-polish", Type: FieldNumber, Unit: "g", Required: true, Min: num(0.1), Max: num(500), Core: true},
			{Name: "surfaceChecked", Label: "Surface checked", Type: FieldCheckbox, Required: true},
		},
		Photos: []PhotoRequirement{
			{Name: "prePolishedPiece", Label: "Pre-polished piece", Required: true, MinCount: 1, MaxCount: 4},
		},
		Files: []FileRequirement{},
	},
	domain.DepartmentPolishing: {
		Title: "Polishing",
		Instructions: []string{
			"Polish to the finish on the job card and clean in the ultrasonic bath.",
		},
		Fields: []FormField{
			{Name: "finishType", Label: "Finish", Type: FieldSelect, Required: true, Options: []string{"High Polish", "Matte", "Satin", "Brushed"}, Core: true},
			{Name: "weightAfterPolish", Label: "Weight after polish", Type: FieldNumber, Unit: "g", Required: true, Min: num(0.1), Max: num(500)},
			{Name: "polishingNotes", Label: "Notes", Type: FieldTextarea, MaxLength: length(1000)},
		},
		Photos: []PhotoRequirement{
			{Name: "polishedPiece", Label: "Polished piece", Required: true, MinCount: 2, MaxCount: 8},
		},
		Files: []FileRequirement{},
	},
	domain.DepartmentStoneSetting: {
		Title: "Stone Setting",
		Instructions: []string{
			"Set the issued stones and verify the count against the issue slip.",
			"Photograph the set stones under magnification.",
		},
		Fields: []FormField{
			{Name: "stoneCount", Label: "Stones set", Type: FieldNumber, Required: true, Min: num(1), Max: num(500), Core: true},
			{Name: "settingStyle", Label: "Setting style", Type: FieldSelect, Required: true, Options: []string{"Prong", "Bezel", "Pave", "Channel", "Flush"}},
			{Name: "stonesVerified", Label: "Stone count verified", Type: FieldCheckbox, Required: true, Core: true},
			{Name: "brokenStones", Label: "Broken stones", Type: FieldNumber, Min: num(0), Max: num(500)},
		},
		Photos: []PhotoRequirement{
			{Name: "setStones", Label: "Set stones", Required: true, MinCount: 2, MaxCount: 8},
		},
		Files: []FileRequirement{
			{Name: "stoneIssueSlip", Label: "Stone issue slip", Required: true, AcceptedFormats: []string{".pdf", ".jpg", ".jpeg", ".png"}, MaxSizeMB: 10},
		},
	},
	domain.DepartmentFinishing: {
		Title: "Finishing",
		Instructions: []string{
			"Final clean, hallmark and quality check before packing.",
		},
		Fields: []FormField{
			{Name: "finalWeight", Label: "Final weight", Type: FieldNumber, Unit: "g", Required: true, Min: num(0.1), Max: num(500), Core: true},
			{Name: "hallmarkStamped", Label: "Hallmark stamped", Type: FieldCheckbox, Required: true},
			{Name: "qualityCheckPassed", Label: "Quality check passed", Type: FieldCheckbox, Required: true, Core: true},
			{Name: "packagingNotes", Label: "Packaging notes", Type: FieldTextarea, MaxLength: length(500)},
		},
		Photos: []PhotoRequirement{
			{Name: "finalProduct", Label: "Final product", Required: true, MinCount: 3, MaxCount: 10},
		},
		Files: []FileRequirement{
			{Name: "qualityCertificate", Label: "Quality certificate", Required: true, AcceptedFormats: []string{".pdf"}, MaxSizeMB: 10},
		},
	},
}
