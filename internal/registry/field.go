package registry

import "strings"

// Field names a logical attribute of a transaction row.
type Field string

const (
	FieldDate              Field = "date"
	FieldSellerID          Field = "seller_id"
	FieldProductName       Field = "product_name"
	FieldAmount            Field = "amount"
	FieldQuantity          Field = "quantity"
	FieldUnitPrice         Field = "unit_price"
	FieldRegistration      Field = "registration"
	FieldDelay             Field = "delay"
	FieldTotalRegistration Field = "total_registration"
	FieldCropYear          Field = "crop_year"
	FieldTopGroup          Field = "top_group"
	FieldMainGroup         Field = "main_group"
	FieldUpperGroup        Field = "upper_group"
	FieldSellerProfession  Field = "seller_profession"
	FieldSellerStatus      Field = "seller_status"
	FieldSellerMode        Field = "seller_mode"
	FieldBuyerStatus       Field = "buyer_status"
	FieldBuyerProfession   Field = "buyer_profession"
	FieldBuyerMode         Field = "buyer_mode"
	FieldQuotationStatus   Field = "quotation_status"
	FieldUnitName          Field = "unit_name"
	FieldCondition         Field = "condition"
)

// Kind describes how a column is coerced during normalization.
type Kind int

const (
	KindDate Kind = iota
	KindString
	KindNumber
	KindCategory
)

// FieldSpec declares one known column of the registry spreadsheet.
type FieldSpec struct {
	Name   Field
	Column string
	Kind   Kind
	// Filterable fields can carry a selection in FilterState.
	Filterable bool
	// PrivacySafe selections are replayed onto the global comparison view.
	PrivacySafe bool
	// ScopeLocal selections are only honoured for admin and staff.
	ScopeLocal bool
}

// Source spreadsheet headers.
const (
	ColumnDate        = "TescilTarihi"
	ColumnSellerID    = "SaticiSicilNo"
	ColumnProductName = "UrunAdi"
	ColumnAmount      = "Tutar"
	ColumnQuantity    = "Miktar"
)

// fieldSpecs is ordered the way filters are presented: crop year, group
// hierarchy, product, remaining categoricals, then the admin seller filter.
var fieldSpecs = []FieldSpec{
	{Name: FieldDate, Column: ColumnDate, Kind: KindDate, PrivacySafe: true},
	{Name: FieldCropYear, Column: "MahsulYili", Kind: KindCategory, Filterable: true, PrivacySafe: true},
	{Name: FieldTopGroup, Column: "EnUstGrupAdi", Kind: KindCategory, Filterable: true, PrivacySafe: true},
	{Name: FieldMainGroup, Column: "AnaGrupAdi", Kind: KindCategory, Filterable: true, PrivacySafe: true},
	{Name: FieldUpperGroup, Column: "UstGrupAdi", Kind: KindCategory, Filterable: true, PrivacySafe: true},
	{Name: FieldProductName, Column: ColumnProductName, Kind: KindString, Filterable: true, PrivacySafe: true},
	{Name: FieldSellerProfession, Column: "SaticiMeslekGrubu", Kind: KindCategory, Filterable: true},
	{Name: FieldSellerStatus, Column: "SaticiUyeDurumu", Kind: KindCategory, Filterable: true},
	{Name: FieldBuyerStatus, Column: "AliciUyeDurumu", Kind: KindCategory, Filterable: true},
	{Name: FieldQuotationStatus, Column: "KotasyonDurumu", Kind: KindCategory, Filterable: true},
	{Name: FieldCondition, Column: "SartAciklama", Kind: KindCategory, Filterable: true},
	{Name: FieldSellerID, Column: ColumnSellerID, Kind: KindString, Filterable: true, ScopeLocal: true},
	{Name: FieldAmount, Column: ColumnAmount, Kind: KindNumber},
	{Name: FieldQuantity, Column: ColumnQuantity, Kind: KindNumber},
	{Name: FieldUnitPrice, Column: "Fiyat", Kind: KindNumber},
	{Name: FieldRegistration, Column: "Tescil", Kind: KindNumber},
	{Name: FieldDelay, Column: "Gecikme", Kind: KindNumber},
	{Name: FieldTotalRegistration, Column: "TopTescil", Kind: KindNumber},
	{Name: FieldSellerMode, Column: "SaticiUyeModu", Kind: KindCategory},
	{Name: FieldBuyerProfession, Column: "AliciMeslekGrubu", Kind: KindCategory},
	{Name: FieldBuyerMode, Column: "AliciUyeModu", Kind: KindCategory},
	{Name: FieldUnitName, Column: "BirimAdi", Kind: KindCategory},
}

var (
	specsByName   = make(map[Field]FieldSpec, len(fieldSpecs))
	specsByColumn = make(map[string]FieldSpec, len(fieldSpecs))
)

func init() {
	for _, spec := range fieldSpecs {
		specsByName[spec.Name] = spec
		specsByColumn[spec.Column] = spec
	}
}

// DefaultRequiredColumns is the schema contract of the registry export.
func DefaultRequiredColumns() []string {
	return []string{ColumnDate, ColumnSellerID, ColumnProductName, ColumnAmount, ColumnQuantity}
}

// Spec returns the declared FieldSpec for a field.
func Spec(f Field) (FieldSpec, bool) {
	spec, ok := specsByName[f]
	return spec, ok
}

// SpecForColumn resolves a (trimmed) spreadsheet header to its field.
func SpecForColumn(column string) (FieldSpec, bool) {
	spec, ok := specsByColumn[strings.TrimSpace(column)]
	return spec, ok
}

// FilterableFields lists the fields a FilterState may select on, in display order.
func FilterableFields() []Field {
	out := make([]Field, 0, len(fieldSpecs))
	for _, spec := range fieldSpecs {
		if spec.Filterable {
			out = append(out, spec.Name)
		}
	}
	return out
}

// ParseField maps a query parameter name to a filterable field.
func ParseField(name string) (Field, bool) {
	spec, ok := specsByName[Field(strings.ToLower(strings.TrimSpace(name)))]
	if !ok || !spec.Filterable {
		return "", false
	}
	return spec.Name, true
}
