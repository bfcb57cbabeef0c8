package dto

type SummaryQuery struct {
	AsOf string `form:"as_of"`
	TopN int    `form:"top_n,default=5"`
}

type TopProduct struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	TotalSold int64  `json:"total_sold"`
}

type SalesSummaryResponse struct {
	AsOf        string       `json:"as_of"`
	TodaySales  string       `json:"today_sales"`
	MonthSales  string       `json:"month_sales"`
	TotalSales  string       `json:"total_sales"`
	TodayCount  int64        `json:"today_count"`
	TopProducts []TopProduct `json:"top_products"`
}

type EmailSummaryRequest struct {
	To   string `json:"to"    validate:"required,email"`
	AsOf string `json:"as_of"`
	TopN int    `json:"top_n" validate:"omitempty,min=1,max=50"`
}

// ReportEmailJob is the payload of a queued summary e-mail.
type ReportEmailJob struct {
	To          string `json:"to"`
	AsOf        string `json:"as_of"` // RFC 3339
	TopN        int    `json:"top_n"`
	RequestedBy uint   `json:"requested_by"`
}
