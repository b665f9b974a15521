package srvreg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/medichain/recognition"
	"github.com/ahmadzakiakmal/medichain/repository"
	"github.com/ahmadzakiakmal/medichain/repository/models"
)

const (
	// MaxImageSize bounds medicine photo uploads
	MaxImageSize = 10 << 20

	imageField           = "medicineImage"
	defaultSearchRadius  = 50.0
	defaultShelfLifeDays = 30
)

type medicineCreateBody struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Expiry   string `json:"expiry"`
	Priority bool   `json:"priority"`
}

type medicineUpdateBody struct {
	Name     *string `json:"name"`
	Quantity *int    `json:"quantity"`
	Expiry   *string `json:"expiry"`
	Priority *bool   `json:"priority"`
}

type searchBody struct {
	Name        string   `json:"name"`
	Quantity    int      `json:"quantity"`
	MaxDistance *float64 `json:"maxDistance"`
}

type processImageResult struct {
	Analysis         *recognition.Analysis `json:"analysis"`
	CreatedMedicines []models.Medicine     `json:"createdMedicines"`
}

func (sr *ServiceRegistry) ListMedicinesHandler(req *Request) (*Response, error) {
	medicines, repoErr := sr.repository.ListMedicines()
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return list(medicines, len(medicines))
}

func (sr *ServiceRegistry) GetMedicineHandler(req *Request) (*Response, error) {
	medicine, repoErr := sr.repository.GetMedicine(req.Params["id"])
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return success(http.StatusOK, medicine)
}

func (sr *ServiceRegistry) MedicinesByHospitalHandler(req *Request) (*Response, error) {
	medicines, repoErr := sr.repository.ListMedicinesByHospital(req.Params["hospitalId"])
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return list(medicines, len(medicines))
}

func (sr *ServiceRegistry) CreateMedicineHandler(req *Request) (*Response, error) {
	var body medicineCreateBody
	if err := decodeBody(req, medicineCreateSchema, &body); err != nil {
		return nil, err
	}
	expiry, err := parseExpiry(body.Expiry)
	if err != nil {
		return nil, err
	}

	medicine, repoErr := sr.repository.CreateMedicine(&models.Medicine{
		Name:       strings.TrimSpace(body.Name),
		Quantity:   body.Quantity,
		Expiry:     expiry,
		Priority:   body.Priority,
		HospitalID: req.Caller.ID,
	})
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return success(http.StatusCreated, medicine)
}

func (sr *ServiceRegistry) UpdateMedicineHandler(req *Request) (*Response, error) {
	var body medicineUpdateBody
	if err := decodeBody(req, medicineUpdateSchema, &body); err != nil {
		return nil, err
	}

	update := repository.MedicineUpdate{
		Name:     trimmed(body.Name),
		Quantity: body.Quantity,
		Priority: body.Priority,
	}
	if body.Expiry != nil {
		expiry, err := parseExpiry(*body.Expiry)
		if err != nil {
			return nil, err
		}
		update.Expiry = &expiry
	}
	if update.Empty() {
		return nil, BadRequest("Please provide at least one field to update")
	}

	medicine, repoErr := sr.repository.UpdateMedicine(req.Params["id"], req.Caller.ID, update)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return success(http.StatusOK, medicine)
}

func (sr *ServiceRegistry) DeleteMedicineHandler(req *Request) (*Response, error) {
	if repoErr := sr.repository.DeleteMedicine(req.Params["id"], req.Caller.ID); repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return noContent()
}

func (sr *ServiceRegistry) LowStockHandler(req *Request) (*Response, error) {
	threshold, err := strconv.Atoi(req.Params["threshold"])
	if err != nil {
		return nil, BadRequest("Invalid threshold value")
	}

	medicines, repoErr := sr.repository.LowStock(req.Caller.ID, threshold)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return list(medicines, len(medicines))
}

func (sr *ServiceRegistry) ExpiringSoonHandler(req *Request) (*Response, error) {
	days, err := strconv.Atoi(req.Params["days"])
	if err != nil {
		return nil, BadRequest("Invalid days value")
	}

	until := sr.now().AddDate(0, 0, days)
	medicines, repoErr := sr.repository.ExpiringBefore(req.Caller.ID, until)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return list(medicines, len(medicines))
}

func (sr *ServiceRegistry) SearchMedicinesHandler(req *Request) (*Response, error) {
	var body searchBody
	if err := decodeBody(req, searchSchema, &body); err != nil {
		return nil, err
	}

	query := repository.MedicineQuery{
		Name:          strings.TrimSpace(body.Name),
		MinQuantity:   body.Quantity,
		MaxDistanceKm: defaultSearchRadius,
	}
	if body.MaxDistance != nil {
		query.MaxDistanceKm = *body.MaxDistance
	}

	matches, repoErr := sr.repository.SearchMedicines(req.Caller.ID, query)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return list(matches, len(matches))
}

// ProcessImageHandler identifies the medicine in an uploaded photo and adds it
// to the caller's stock. Recognition failures fall back to the file name.
func (sr *ServiceRegistry) ProcessImageHandler(req *Request) (*Response, error) {
	img, err := formImage(req, imageField)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(req.Context(), sr.recognitionTimeout)
	defer cancel()

	analysis, fallback, err := recognition.Analyze(ctx, sr.recognizer, *img)
	if err != nil {
		sr.logger.Error("Image recognition failed, using fallback", "file", img.Filename, "err", err)
	} else if fallback {
		sr.logger.Info("Image recognition not configured, using fallback", "file", img.Filename)
	}

	quantity := analysis.Quantity
	if quantity <= 0 {
		quantity = recognition.DefaultQuantity
	}
	medicine, repoErr := sr.repository.CreateMedicine(&models.Medicine{
		Name:       analysis.BrandName,
		Quantity:   quantity,
		Expiry:     sr.now().UTC().AddDate(0, 0, defaultShelfLifeDays),
		Priority:   false,
		HospitalID: req.Caller.ID,
	})
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}

	return success(http.StatusCreated, processImageResult{
		Analysis:         analysis,
		CreatedMedicines: []models.Medicine{*medicine},
	})
}

// formImage extracts an image file field from a multipart request body
func formImage(req *Request, field string) (*recognition.Image, error) {
	mediaType, params, err := mime.ParseMediaType(req.Header("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return nil, BadRequest("Please provide a medicine image")
	}

	reader := multipart.NewReader(bytes.NewReader(req.RawBody), params["boundary"])
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, BadRequest("Please provide a medicine image")
		}
		if err != nil {
			return nil, BadRequest("Malformed multipart body")
		}
		if part.FormName() != field || part.FileName() == "" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, MaxImageSize+1))
		part.Close()
		if err != nil {
			return nil, BadRequest("Malformed multipart body")
		}
		if len(data) > MaxImageSize {
			return nil, PayloadTooLarge("File too large, maximum size is 10MB")
		}
		if len(data) == 0 {
			return nil, BadRequest("Please provide a medicine image")
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		if !strings.HasPrefix(contentType, "image/") {
			return nil, BadRequest("Only image files are allowed")
		}

		return &recognition.Image{
			Filename:    part.FileName(),
			ContentType: contentType,
			Data:        data,
		}, nil
	}
}
