package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/splitsquad/splitpay/internal/handler"
	"github.com/splitsquad/splitpay/internal/signing"
)

// SetupRouter sets up the sponsor service router.
func SetupRouter(service *signing.SponsorService) http.Handler {
	sponsorHandler := handler.NewSponsorHandler(service)

	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Sponsor endpoints
	mux.HandleFunc("/sponsor/sign", sponsorHandler.Sign)
	mux.HandleFunc("/sponsor/address", sponsorHandler.Address)
	mux.HandleFunc("/healthz", sponsorHandler.Health)

	return mux
}
