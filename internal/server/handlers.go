package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openprocure/rfp-pilot/internal/intake"
	"github.com/openprocure/rfp-pilot/internal/rfp"
)

type createRFPRequest struct {
	Text   string `json:"text" binding:"required"`
	UserID *uint  `json:"user_id,omitempty"`
}

// createRFP extracts a structured document from buyer free text and persists
// the RFP with its mirrored scalar fields.
func (s *Server) createRFP(c *gin.Context) {
	var req createRFPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	doc, err := s.extractor.ExtractRFP(c.Request.Context(), req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}

	structured, err := json.Marshal(doc)
	if err != nil {
		s.fail(c, err)
		return
	}

	title := doc.Title
	if title == "" {
		if len(doc.Items) > 0 {
			title = "RFP: " + doc.Items[0].Name
		} else if len(req.Text) > 80 {
			title = req.Text[:80]
		} else {
			title = req.Text
		}
	}

	record := &rfp.RFP{
		UserID:         req.UserID,
		Title:          title,
		Description:    req.Text,
		Structured:     structured,
		Budget:         doc.TotalBudget,
		Currency:       doc.Currency,
		PaymentTerms:   doc.PaymentTerms,
		WarrantyMonths: doc.WarrantyMonths,
	}

	if err := s.store.RFPs.Create(c.Request.Context(), record); err != nil {
		s.fail(c, err)
		return
	}

	s.logger.Info("created rfp", zap.Uint("rfp_id", record.ID), zap.String("title", record.Title))
	c.JSON(http.StatusCreated, record)
}

func (s *Server) listRFPs(c *gin.Context) {
	records, err := s.store.RFPs.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) getRFP(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	record, err := s.store.RFPs.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "RFP not found"})
		return
	}

	statuses, err := s.store.Statuses.ListByRFP(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rfp": record, "sent_to": statuses})
}

// updateRFPStructured lets the buyer edit the extracted fields after review.
func (s *Server) updateRFPStructured(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var doc rfp.RFPDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid structured document"})
		return
	}

	record, err := s.store.RFPs.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "RFP not found"})
		return
	}

	if err := s.store.RFPs.UpdateStructured(c.Request.Context(), id, &doc); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type sendRFPRequest struct {
	VendorIDs     []uint `json:"vendor_ids" binding:"required"`
	EmailTemplate string `json:"email_template,omitempty"`
}

func (s *Server) sendRFP(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req sendRFPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vendor_ids is required"})
		return
	}

	results, err := s.dispatcher.Send(c.Request.Context(), id, req.VendorIDs, req.EmailTemplate)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// inbound is the webhook for raw vendor mail; it drives the full intake
// reconciliation pipeline.
func (s *Server) inbound(c *gin.Context) {
	var msg intake.InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inbound payload"})
		return
	}

	outcome, err := s.reconciler.Ingest(c.Request.Context(), &msg)
	if err != nil {
		s.fail(c, err)
		return
	}

	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}

	c.JSON(status, gin.H{
		"ok":          true,
		"proposal_id": outcome.Proposal.ID,
		"vendor_id":   outcome.Vendor.ID,
		"created":     outcome.Created,
	})
}

// getEvaluation loads the persisted evaluation state without calling the
// comparator.
func (s *Server) getEvaluation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	record, err := s.store.RFPs.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "RFP not found"})
		return
	}

	proposals, err := s.store.Proposals.ListByRFP(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}

	if len(proposals) == 0 {
		statuses, err := s.store.Statuses.ListByRFP(c.Request.Context(), id)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":   "No proposals received yet.",
			"rfp":       record,
			"proposals": []any{},
			"sent_to":   statuses,
		})
		return
	}

	ranked := make([]gin.H, 0, len(proposals))
	for _, p := range proposals {
		name := ""
		if p.Vendor != nil {
			name = p.Vendor.Name
		}
		ranked = append(ranked, gin.H{
			"vendor_id":   p.VendorID,
			"vendor_name": name,
			"score":       p.Score,
			"reason":      p.Summary,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"rfp":       record,
		"proposals": proposals,
		"ranked":    ranked,
	})
}

// runEvaluation calls the comparator over all live proposals, merges the
// result into stored scores, and notifies the buyer of the outcome.
func (s *Server) runEvaluation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	record, err := s.store.RFPs.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "RFP not found"})
		return
	}

	result, err := s.merger.Evaluate(c.Request.Context(), record)
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := s.dispatcher.NotifyOutcome(c.Request.Context(), record, result); err != nil {
		// The merged scores are already persisted; a failed notification is
		// reported but does not fail the evaluation.
		s.logger.Warn("buyer notification failed", zap.Uint("rfp_id", id), zap.Error(err))
	}

	proposals, err := s.store.Proposals.ListByRFP(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rfp":               record,
		"proposals":         proposals,
		"ranked":            result.Ranked,
		"explanation_text":  result.Explanation,
		"comparative_table": result.ComparativeTable,
		"updated":           result.Updated,
		"missing":           result.Missing,
		"failed":            result.Failed,
	})
}

type createVendorRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
}

func (s *Server) createVendor(c *gin.Context) {
	var req createVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and email are required"})
		return
	}

	vendor := &rfp.Vendor{Name: req.Name, Email: intake.NormalizeEmail(req.Email)}
	if err := s.store.Vendors.Create(c.Request.Context(), vendor); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, vendor)
}

func (s *Server) listVendors(c *gin.Context) {
	vendors, err := s.store.Vendors.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, vendors)
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
