package relay

// User-facing texts produced when the remote agent did not answer normally.
const (
	SlowSearchText      = "⏳ La búsqueda está tardando más de lo esperado. El agente sigue procesando tu consulta; vuelve a preguntar en unos minutos para ver el resultado."
	UpstreamHTMLText    = "⚠️ El servicio del agente devolvió una página de error. Inténtalo de nuevo en unos instantes."
	EmptyResponseText   = "El agente no devolvió ninguna respuesta."
	UpstreamCutText     = "⚠️ La respuesta del agente se interrumpió antes de completarse."
	TimeoutText         = "⏳ Tu consulta sigue en proceso. Es posible que el agente termine en segundo plano; vuelve a intentarlo en unos minutos."
	UpstreamFailureText = "Lo siento, ha ocurrido un error al contactar con el agente."
)
