package registry

// Ranking sizes used by the dashboard panels.
const (
	PanelTopN   = 20
	SummaryTopN = 15
)

// KPI holds the headline figures of a view.
type KPI struct {
	Records          int      `json:"records"`
	TotalAmount      Optional `json:"total_amount"`
	TotalQuantity    Optional `json:"total_quantity"`
	UniqueSellers    int      `json:"unique_sellers"`
	UniqueProducts   int      `json:"unique_products"`
	WeightedAvgPrice Optional `json:"weighted_avg_price"`
}

// Panel is the aggregate view over the caller's scoped rows.
type Panel struct {
	KPI            KPI           `json:"kpi"`
	Monthly        []MonthBucket `json:"monthly"`
	TopProducts    []GroupSum    `json:"top_products"`
	TopMainGroups  []GroupSum    `json:"top_main_groups,omitempty"`
	TopSellers     []GroupSum    `json:"top_sellers,omitempty"`
	QuotationShare []ValueCount  `json:"quotation_share,omitempty"`
}

// MarketShare compares a member's total with the privacy-safe global total.
type MarketShare struct {
	MemberAmount float64 `json:"member_amount"`
	GlobalAmount float64 `json:"global_amount"`
	SharePercent float64 `json:"share_percent"`
}

// ExchangeSummary is the member's totals-only view of the whole exchange
// within the selected date range.
type ExchangeSummary struct {
	Records        int        `json:"records"`
	TotalAmount    float64    `json:"total_amount"`
	TotalQuantity  float64    `json:"total_quantity"`
	UniqueProducts int        `json:"unique_products"`
	TopProducts    []GroupSum `json:"top_products"`
}

// ViewResult is everything one identity sees for one filter state.
type ViewResult struct {
	Role     Role               `json:"role"`
	MemberID string             `json:"member_id,omitempty"`
	Options  map[Field][]string `json:"options"`
	Panel    Panel              `json:"panel"`
	Market   *MarketShare       `json:"market,omitempty"`
	Summary  *ExchangeSummary   `json:"summary,omitempty"`

	scoped Table
}

// Scoped returns the filtered rows the caller is entitled to export.
func (v ViewResult) Scoped() Table { return v.scoped }

// Evaluator runs the view pipeline. OnUnknownRole, when set, is called for
// identities whose role resolves to no access.
type Evaluator struct {
	OnUnknownRole func(Identity)
}

// Evaluate runs the pipeline with a default Evaluator.
func Evaluate(id Identity, f FilterState, t Table) (ViewResult, error) {
	return Evaluator{}.Evaluate(id, f, t)
}

// Evaluate resolves the caller's scope, applies f to it and aggregates. For
// members the privacy-safe projection of f is replayed on the whole table and
// only scalar totals of that global view are kept.
func (e Evaluator) Evaluate(id Identity, f FilterState, t Table) (ViewResult, error) {
	scoped, err := ResolveScope(id, t)
	if err != nil {
		return ViewResult{}, err
	}
	if !id.Role.Known() && e.OnUnknownRole != nil {
		e.OnUnknownRole(id)
	}
	if err := f.Validate(id.Role); err != nil {
		return ViewResult{}, err
	}

	view := ApplyFilters(scoped, f)
	result := ViewResult{
		Role:    id.Role,
		Options: filterOptions(ApplyFilters(scoped, f.DateOnly()), id.Role),
		Panel:   buildPanel(view, id.Role.Privileged()),
		scoped:  view,
	}

	if id.Role == RoleMember {
		result.MemberID = id.MemberID
		global := ApplyFilters(t, f.Global())
		memberAmount := SumNumeric(view, FieldAmount)
		globalAmount := SumNumeric(global, FieldAmount)
		result.Market = &MarketShare{
			MemberAmount: memberAmount,
			GlobalAmount: globalAmount,
			SharePercent: Share(memberAmount, globalAmount),
		}
		result.Summary = summarize(ApplyFilters(t, f.DateOnly()))
	}
	return result, nil
}

func filterOptions(t Table, role Role) map[Field][]string {
	out := make(map[Field][]string)
	for _, field := range FilterableFields() {
		spec, _ := Spec(field)
		if spec.ScopeLocal && !role.Privileged() {
			continue
		}
		if !t.Has(field) {
			continue
		}
		out[field] = Options(t, field)
	}
	return out
}

func buildPanel(t Table, privileged bool) Panel {
	p := Panel{
		KPI: KPI{
			Records:          Count(t),
			TotalAmount:      totalOf(t, FieldAmount),
			TotalQuantity:    totalOf(t, FieldQuantity),
			UniqueSellers:    UniqueCount(t, FieldSellerID),
			UniqueProducts:   UniqueCount(t, FieldProductName),
			WeightedAvgPrice: WeightedAveragePrice(t),
		},
		Monthly: MonthlySeries(t),
	}
	p.TopProducts, _ = TopNBySum(t, FieldProductName, FieldAmount, PanelTopN)
	if privileged {
		p.TopMainGroups, _ = TopNBySum(t, FieldMainGroup, FieldAmount, PanelTopN)
		p.TopSellers, _ = TopNBySum(t, FieldSellerID, FieldAmount, PanelTopN)
		p.QuotationShare, _ = ValueDistribution(t, FieldQuotationStatus)
	}
	return p
}

func totalOf(t Table, field Field) Optional {
	if !t.Has(field) {
		return Optional{}
	}
	return Available(SumNumeric(t, field))
}

func summarize(global Table) *ExchangeSummary {
	top, _ := TopNBySum(global, FieldProductName, FieldAmount, SummaryTopN)
	return &ExchangeSummary{
		Records:        Count(global),
		TotalAmount:    SumNumeric(global, FieldAmount),
		TotalQuantity:  SumNumeric(global, FieldQuantity),
		UniqueProducts: UniqueCount(global, FieldProductName),
		TopProducts:    top,
	}
}
