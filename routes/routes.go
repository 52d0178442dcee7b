package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/42-Transcendence-2025/consegna-finale/handlers"
	"github.com/42-Transcendence-2025/consegna-finale/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	matchmakingHandler *handlers.MatchmakingHandler,
	tournamentHandler *handlers.TournamentHandler,
	gameHandler *handlers.GameHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/match", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/private-password/", matchmakingHandler.PairByPassword)

		r.Post("/ranked/", matchmakingHandler.JoinRanked)
		r.Get("/ranked/", matchmakingHandler.PollRanked)
		r.Delete("/ranked/", matchmakingHandler.LeaveRanked)

		r.Post("/tournament/", tournamentHandler.Create)
		r.Get("/tournament/", tournamentHandler.List)
		r.Get("/tournament/{id}/", tournamentHandler.Detail)
		r.Put("/tournament/{id}/", tournamentHandler.Join)
		r.Delete("/tournament/{id}/", tournamentHandler.Leave)
		r.Post("/tournament/{id}/play/", tournamentHandler.Play)
	})

	// The WebSocket route authenticates via its first frame, not the header.
	router.Get("/ws/game/{gameID}", gameHandler.ServeWS)
}
