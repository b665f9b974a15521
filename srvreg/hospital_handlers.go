package srvreg

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/ahmadzakiakmal/medichain/geo"
	"github.com/ahmadzakiakmal/medichain/repository"
)

type profileUpdateBody struct {
	Name      *string  `json:"name"`
	Email     *string  `json:"email"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (sr *ServiceRegistry) ListHospitalsHandler(req *Request) (*Response, error) {
	hospitals, repoErr := sr.repository.ListHospitals()
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return list(hospitals, len(hospitals))
}

func (sr *ServiceRegistry) GetHospitalHandler(req *Request) (*Response, error) {
	hospital, repoErr := sr.repository.GetHospitalByID(req.Params["id"])
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return success(http.StatusOK, hospital)
}

func (sr *ServiceRegistry) GetMyProfileHandler(req *Request) (*Response, error) {
	hospital, repoErr := sr.repository.GetHospitalProfile(req.Caller.ID)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return success(http.StatusOK, hospital)
}

func (sr *ServiceRegistry) UpdateMyProfileHandler(req *Request) (*Response, error) {
	var body profileUpdateBody
	if err := decodeBody(req, profileUpdateSchema, &body); err != nil {
		return nil, err
	}

	update := repository.HospitalUpdate{
		Name:      trimmed(body.Name),
		Email:     trimmed(body.Email),
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
	}
	if update.Empty() {
		return nil, BadRequest("Please provide at least one field to update")
	}

	hospital, repoErr := sr.repository.UpdateHospitalProfile(req.Caller.ID, update)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return success(http.StatusOK, hospital)
}

// NearbyHospitalsHandler serves /hospitals/nearby/:lat/:lon/:distanceKm
func (sr *ServiceRegistry) NearbyHospitalsHandler(req *Request) (*Response, error) {
	lat, errLat := parseFloatParam(req.Params["lat"])
	lon, errLon := parseFloatParam(req.Params["lon"])
	radius, errRadius := parseFloatParam(req.Params["distanceKm"])
	origin := geo.Coordinate{Latitude: lat, Longitude: lon}
	if errLat != nil || errLon != nil || errRadius != nil || radius < 0 || !origin.Valid() {
		return nil, BadRequest("Invalid coordinates or distance")
	}

	hospitals, repoErr := sr.repository.NearbyHospitals(origin, radius)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return list(hospitals, len(hospitals))
}

func parseFloatParam(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

// trimmed returns nil for absent or blank strings
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
