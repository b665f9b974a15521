package srvreg

import (
	"net/http"
	"strings"

	"github.com/ahmadzakiakmal/medichain/repository"
	"github.com/ahmadzakiakmal/medichain/repository/models"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerBody struct {
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	WalletAddress string  `json:"walletAddress"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// authPayload is the public profile returned together with a token
type authPayload struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	WalletAddress string   `json:"walletAddress"`
	Reputation    int      `json:"reputation"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Token         string   `json:"token"`
}

func (sr *ServiceRegistry) LoginHandler(req *Request) (*Response, error) {
	var body loginBody
	if err := decodeBody(req, loginSchema, &body); err != nil {
		return nil, err
	}

	hospital, repoErr := sr.repository.GetHospitalByEmail(strings.TrimSpace(body.Email))
	if repoErr != nil {
		if repoErr.Code == repository.ErrCodeNotFound {
			return nil, Unauthorized("Invalid credentials")
		}
		return nil, fromRepositoryError(repoErr)
	}

	ok, err := sr.hasher.Verify(body.Password, hospital.PasswordHash)
	if err != nil {
		sr.logger.Error("Stored password hash is unreadable", "hospital", hospital.ID, "err", err)
	}
	if !ok {
		return nil, Unauthorized("Invalid credentials")
	}

	return sr.authResponse(http.StatusOK, hospital)
}

func (sr *ServiceRegistry) RegisterHospitalHandler(req *Request) (*Response, error) {
	var body registerBody
	if err := decodeBody(req, registerSchema, &body); err != nil {
		return nil, err
	}

	passwordHash, err := sr.hasher.Hash(body.Password)
	if err != nil {
		return nil, Internal("Failed to register hospital", err)
	}

	lat, lon := body.Latitude, body.Longitude
	hospital, repoErr := sr.repository.CreateHospital(&models.Hospital{
		Name:          strings.TrimSpace(body.Name),
		Email:         strings.TrimSpace(body.Email),
		PasswordHash:  passwordHash,
		WalletAddress: strings.TrimSpace(body.WalletAddress),
		Latitude:      &lat,
		Longitude:     &lon,
	})
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}

	sr.logger.Info("Hospital registered", "id", hospital.ID, "email", hospital.Email)
	return sr.authResponse(http.StatusCreated, hospital)
}

func (sr *ServiceRegistry) authResponse(statusCode int, hospital *models.Hospital) (*Response, error) {
	token, err := sr.tokens.Issue(hospital.ID, hospital.Email)
	if err != nil {
		return nil, Internal("Failed to issue token", err)
	}
	return success(statusCode, authPayload{
		ID:            hospital.ID,
		Name:          hospital.Name,
		Email:         hospital.Email,
		WalletAddress: hospital.WalletAddress,
		Reputation:    hospital.Reputation,
		Latitude:      hospital.Latitude,
		Longitude:     hospital.Longitude,
		Token:         token,
	})
}

// authenticate resolves the bearer token of req into the calling hospital
func (sr *ServiceRegistry) authenticate(req *Request) (*Caller, error) {
	header := req.Header("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, Unauthorized("Not authorized, no token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return nil, Unauthorized("Not authorized, no token")
	}

	claims, err := sr.tokens.Verify(token)
	if err != nil {
		return nil, Unauthorized("Not authorized, invalid token")
	}

	hospital, repoErr := sr.repository.GetHospitalByID(claims.HospitalID)
	if repoErr != nil {
		if repoErr.Code == repository.ErrCodeNotFound {
			return nil, Unauthorized("Not authorized, hospital no longer exists")
		}
		return nil, fromRepositoryError(repoErr)
	}

	return &Caller{
		ID:            hospital.ID,
		Email:         hospital.Email,
		WalletAddress: hospital.WalletAddress,
	}, nil
}
