// Package http implements the HTTP handlers of the BMI dashboard. Handlers
// stay thin: they parse and validate the request, call a service and format
// the response.
//
// # Request Flow
//
//	HTTP Request → Chi Router → Middleware → Handler → DashboardService
//	                                            ↓
//	HTTP Response ← Handler ← summary tables ←──┘
//
// # Error Handling
//
// Every error goes through errors.ErrorHandler and is written as RFC 7807
// problem details:
//
//	{
//	    "type": "/errors/filter/invalid-value",
//	    "title": "Invalid Filter Value",
//	    "status": 400,
//	    "detail": "invalid filter value: sex \"Other\" must be one of BothSexes, Female, Male",
//	    "instance": "/api/summaries/mean"
//	}
//
// # WebSocket Support
//
// WebSocketHandler upgrades /ws with gorilla/websocket and hands the
// connection to the hub, which replays the latest status and summaries and
// then pushes every summary:update.
//
// # Testing
//
// Handlers are tested with httptest against a testify mock of
// DashboardServiceInterface.
package http
