package server

import (
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/fiscalflow/internal/api/v1"
	"github.com/gosuda/fiscalflow/internal/api/ws"
)

func registerAuthRoutes(api huma.API, deps Deps) {
	v1.RegisterAuthRoutes(api, deps.Auth)
}

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterMeRoutes(api)
	v1.RegisterChatRoutes(api, deps.Chat, deps.Extractor)
	v1.RegisterConversationRoutes(api, deps.History, deps.Now)
	v1.RegisterReportRoutes(api, deps.Reports)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/chat/{sessionID}", hub.ServeChat)
}

// originHosts turns CORS origins into websocket origin patterns.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
