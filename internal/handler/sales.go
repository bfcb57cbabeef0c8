package handler

import (
	"fmt"
	"net/http"

	"possales/internal/dto"
	"possales/internal/middleware"
	"possales/internal/service"

	"github.com/gin-gonic/gin"
)

type SalesHandler struct{ svc service.SaleService }

func NewSalesHandler(svc service.SaleService) *SalesHandler { return &SalesHandler{svc: svc} }

// Create godoc
// @Summary      Record a sale
// @Description  Atomically checks stock, snapshots prices, stores the sale and decrements stock.
// @Tags         sales
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.CreateSaleRequest true "Sale lines"
// @Success      201  {object} dto.SaleResponse
// @Failure      400  {object} apierror.APIError
// @Failure      404  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError "insufficient_stock carries product and available"
// @Failure      422  {object} apierror.ValidationError
// @Router       /api/sales [post]
func (h *SalesHandler) Create(c *gin.Context) {
	var req dto.CreateSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateSale(c.Request.Context(), middleware.GetPrincipal(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      List sales
// @Description  Newest first. Staff only see their own sales.
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Param        start_date query string false "YYYY-MM-DD or RFC 3339"
// @Param        end_date   query string false "YYYY-MM-DD (inclusive) or RFC 3339"
// @Param        page       query int    false "Page (default 1)"
// @Param        per_page   query int    false "Page size (default 20, max 100)"
// @Success      200 {object} dto.SaleListResponse
// @Router       /api/sales [get]
func (h *SalesHandler) List(c *gin.Context) {
	var filter dto.SaleFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListSales(c.Request.Context(), middleware.GetPrincipal(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SalesHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetSale(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Receipt godoc
// @Summary      Download a sale receipt
// @Tags         sales
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id path int true "Sale id"
// @Success      200
// @Failure      403 {object} apierror.APIError
// @Failure      404 {object} apierror.APIError
// @Router       /api/sales/{id}/receipt.pdf [get]
func (h *SalesHandler) Receipt(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	pdf, err := h.svc.ReceiptPDF(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%d.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Delete removes a sale and its items. Stock is not restored.
func (h *SalesHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteSale(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Summary godoc
// @Summary      Sales summary
// @Description  Today, month-to-date and overall totals, today's count and top products over the trailing 30 days.
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        as_of query string false "Reference date (default: now)"
// @Param        top_n query int    false "Number of top products (1-50, default 5)"
// @Success      200 {object} dto.SalesSummaryResponse
// @Failure      400 {object} apierror.APIError
// @Failure      403 {object} apierror.APIError
// @Router       /api/sales/reports/summary [get]
func (h *SalesHandler) Summary(c *gin.Context) {
	var q dto.SummaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, invalidQuery(err))
		return
	}
	resp, err := h.svc.GetSalesSummary(c.Request.Context(), middleware.GetPrincipal(c), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// EmailSummary queues the summary as a PDF e-mail and answers 202.
func (h *SalesHandler) EmailSummary(c *gin.Context) {
	var req dto.EmailSummaryRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.svc.EmailSalesSummary(c.Request.Context(), middleware.GetPrincipal(c), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "to": req.To})
}
