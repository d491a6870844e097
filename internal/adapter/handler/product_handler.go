package handler

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/core/service"
)

type productRequest struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

type productResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Version  int64  `json:"version"`
}

func (h *HTTPHandler) createProduct(w http.ResponseWriter, r *http.Request) error {
	var req productRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	rec, err := h.productService.Create(r.Context(), req.ID, domain.Product{Name: req.Name, Quantity: req.Quantity})
	if err != nil {
		return err
	}
	return writeProduct(w, http.StatusCreated, rec)
}

func (h *HTTPHandler) getProduct(w http.ResponseWriter, r *http.Request) error {
	id, err := pathInt(r, "id")
	if err != nil {
		return err
	}

	rec, err := h.productService.Get(r.Context(), id)
	if err != nil {
		return err
	}
	return writeProduct(w, http.StatusOK, rec)
}

func (h *HTTPHandler) updateProduct(w http.ResponseWriter, r *http.Request) error {
	id, err := pathInt(r, "id")
	if err != nil {
		return err
	}
	token, err := requireIfMatch(r)
	if err != nil {
		return err
	}

	var req productRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.ID != 0 && req.ID != id {
		return errors.Wrapf(domain.ErrInvalidPayload, "body id %d does not match path id %d", req.ID, id)
	}

	rec, err := h.productService.Update(r.Context(), id, token, domain.Product{Name: req.Name, Quantity: req.Quantity})
	if err != nil {
		return err
	}
	return writeProduct(w, http.StatusOK, rec)
}

func (h *HTTPHandler) deleteProduct(w http.ResponseWriter, r *http.Request) error {
	id, err := pathInt(r, "id")
	if err != nil {
		return err
	}
	token, err := requireIfMatch(r)
	if err != nil {
		return err
	}

	if err := h.productService.Delete(r.Context(), id, token); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	return nil
}

func writeProduct(w http.ResponseWriter, status int, rec service.ProductRecord) error {
	id, err := service.ParseID(rec.ID)
	if err != nil {
		return err
	}
	writeRecord(w, status, rec.Token(), "/product/"+rec.ID, productResponse{
		ID:       id,
		Name:     rec.Payload.Name,
		Quantity: rec.Payload.Quantity,
		Version:  rec.Version,
	})
	return nil
}
