package main

import (
	"github.com/galdor/go-service/pkg/shttp"
)

// APIServer exposes the replicated key-value store over HTTP, following
// the route layout of the teacher's cmd/kvstore/api_server.go. All four
// handlers, reads and writes alike, reply "not implemented": reading a
// path parameter, decoding a request body and writing a JSON response
// depend on shttp.Handler methods this corpus never exercises beyond
// ReplyNotImplemented, so they stay stubbed exactly as the teacher left
// them.
type APIServer struct {
	Service *Service
}

func NewAPIServer(s *Service) (*APIServer, error) {
	api := APIServer{
		Service: s,
	}

	return &api, nil
}

func (api *APIServer) Init() error {
	api.initRoutes()
	return nil
}

func (api *APIServer) initRoutes() {
	api.Route("/store", "GET", api.hStoreGET)
	api.Route("/store/:key", "GET", api.hStoreKeyGET)
	api.Route("/store/:key", "PUT", api.hStoreKeyPUT)
	api.Route("/store/:key", "DELETE", api.hStoreKeyDELETE)
}

func (api *APIServer) Route(pathPattern, method string, routeFunc shttp.RouteFunc) {
	s := api.Service.Service.HTTPServer("api")
	s.Route(pathPattern, method, routeFunc)
}

func (api *APIServer) hStoreGET(h *shttp.Handler) {
	// TODO snapshot listing, needs a confirmed way to stream
	// api.Service.stateMach.Snapshot() as a JSON response body.
	h.ReplyNotImplemented("key listing")
}

func (api *APIServer) hStoreKeyGET(h *shttp.Handler) {
	// TODO needs a confirmed way to read the ":key" path parameter and
	// reply with api.Service.stateMach.Get(key).
	h.ReplyNotImplemented("key read")
}

func (api *APIServer) hStoreKeyPUT(h *shttp.Handler) {
	// TODO needs a confirmed way to decode the request body so it can be
	// turned into a kv.PutOp and handed to api.Service.engine.ExecuteCommand.
	h.ReplyNotImplemented("key write")
}

func (api *APIServer) hStoreKeyDELETE(h *shttp.Handler) {
	// TODO same as hStoreKeyPUT, for kv.DeleteOp.
	h.ReplyNotImplemented("key deletion")
}
