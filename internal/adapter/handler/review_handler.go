package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/core/service"
)

type reviewEntryDTO struct {
	Username string    `json:"username"`
	Review   string    `json:"review"`
	Date     time.Time `json:"date"`
}

type createReviewRequest struct {
	ProductID int64            `json:"productId"`
	Entries   []reviewEntryDTO `json:"entries"`
}

type reviewResponse struct {
	ID        string           `json:"id"`
	ProductID int64            `json:"productId"`
	Version   int64            `json:"version"`
	Entries   []reviewEntryDTO `json:"entries"`
}

func (h *HTTPHandler) createReview(w http.ResponseWriter, r *http.Request) error {
	var req createReviewRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	entries := make([]domain.ReviewEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, e.toDomain())
	}

	rec, err := h.reviewService.Create(r.Context(), req.ProductID, entries...)
	if err != nil {
		return err
	}
	writeReview(w, http.StatusCreated, rec)
	return nil
}

func (h *HTTPHandler) getReview(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.reviewService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return err
	}
	writeReview(w, http.StatusOK, rec)
	return nil
}

func (h *HTTPHandler) findReview(w http.ResponseWriter, r *http.Request) error {
	productID, err := strconv.ParseInt(r.URL.Query().Get("productId"), 10, 64)
	if err != nil {
		return errors.Wrap(errBadRequestBody, "productId must be a number")
	}

	rec, err := h.reviewService.FindByProductID(r.Context(), productID)
	if err != nil {
		return err
	}
	writeReview(w, http.StatusOK, rec)
	return nil
}

func (h *HTTPHandler) appendReview(w http.ResponseWriter, r *http.Request) error {
	var req reviewEntryDTO
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	rec, err := h.reviewService.Append(r.Context(), mux.Vars(r)["id"], r.Header.Get(headerIfMatch), req.toDomain())
	if err != nil {
		return err
	}
	writeReview(w, http.StatusOK, rec)
	return nil
}

func (h *HTTPHandler) appendReviewForProduct(w http.ResponseWriter, r *http.Request) error {
	productID, err := pathInt(r, "productId")
	if err != nil {
		return err
	}

	var req reviewEntryDTO
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	rec, err := h.reviewService.AppendForProduct(r.Context(), productID, r.Header.Get(headerIfMatch), req.toDomain())
	if err != nil {
		return err
	}
	writeReview(w, http.StatusOK, rec)
	return nil
}

func (h *HTTPHandler) deleteReview(w http.ResponseWriter, r *http.Request) error {
	token, err := requireIfMatch(r)
	if err != nil {
		return err
	}

	if err := h.reviewService.Delete(r.Context(), mux.Vars(r)["id"], token); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	return nil
}

func (e reviewEntryDTO) toDomain() domain.ReviewEntry {
	return domain.ReviewEntry{Username: e.Username, Review: e.Review, Date: e.Date}
}

func writeReview(w http.ResponseWriter, status int, rec service.ReviewRecord) {
	entries := make([]reviewEntryDTO, 0, len(rec.Payload.Entries))
	for _, e := range rec.Payload.Entries {
		entries = append(entries, reviewEntryDTO{Username: e.Username, Review: e.Review, Date: e.Date})
	}
	writeRecord(w, status, rec.Token(), "/review/"+rec.ID, reviewResponse{
		ID:        rec.ID,
		ProductID: rec.Payload.ProductID,
		Version:   rec.Version,
		Entries:   entries,
	})
}
