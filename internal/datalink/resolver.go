// Package datalink pairs a service endpoint with the authenticated id token
// the archive issued for it in a per-file datalink document.
package datalink

import (
	"fmt"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/votable"
)

// ServiceToken is a token usable only against the endpoint it was paired with.
type ServiceToken struct {
	Endpoint string
	Token    string
}

// Resolution is the outcome of looking a service up by name. Either half may be absent.
type Resolution struct {
	Service  string
	Endpoint Optional
	Token    Optional
}

// ServiceToken returns the paired endpoint and token, or ErrUnresolvedService
// naming whichever half is missing.
func (r Resolution) ServiceToken() (ServiceToken, error) {
	endpoint, hasEndpoint := r.Endpoint.Get()
	token, hasToken := r.Token.Get()
	switch {
	case !hasEndpoint && !hasToken:
		return ServiceToken{}, fmt.Errorf("%w: %q has neither %s nor %s", common.ErrUnresolvedService, r.Service, constants.ParamAccessURL, constants.FieldAuthenticatedIDToken)
	case !hasEndpoint:
		return ServiceToken{}, fmt.Errorf("%w: %q has no %s", common.ErrUnresolvedService, r.Service, constants.ParamAccessURL)
	case !hasToken:
		return ServiceToken{}, fmt.Errorf("%w: %q has no %s", common.ErrUnresolvedService, r.Service, constants.FieldAuthenticatedIDToken)
	}
	return ServiceToken{Endpoint: endpoint, Token: token}, nil
}

// Resolve finds the endpoint of serviceName among the meta resources and its
// token in the results table. A document without a results resource is
// malformed; a name that matches nothing yields absent values.
func Resolve(doc *votable.Document, serviceName string) (Resolution, error) {
	out := Resolution{Service: serviceName}
	if doc == nil {
		return out, common.MalformedDocumentf("nil datalink document")
	}

	results, ok := doc.FirstResourceOfType(constants.ResourceTypeResults)
	if !ok {
		return out, common.MalformedDocumentf("datalink document has no %s resource", constants.ResourceTypeResults)
	}

	if len(results.Tables) > 0 {
		out.Token = findToken(results.Tables[0], serviceName)
	}
	out.Endpoint = findEndpoint(doc, serviceName)
	return out, nil
}

// findToken scans the whole table; the last matching row wins.
func findToken(t *votable.Table, serviceName string) Optional {
	token := None()
	for i := 0; i < t.Len(); i++ {
		def, ok := t.Value(i, constants.FieldServiceDef)
		if !ok || def != serviceName {
			continue
		}
		if v, ok := t.Value(i, constants.FieldAuthenticatedIDToken); ok {
			token = Some(v)
		}
	}
	return token
}

func findEndpoint(doc *votable.Document, serviceName string) Optional {
	endpoint := None()
	for _, res := range doc.ResourcesOfType(constants.ResourceTypeMeta) {
		if res.ID != serviceName {
			continue
		}
		if p, ok := res.Param(constants.ParamAccessURL); ok {
			endpoint = Some(p.Value)
		}
	}
	return endpoint
}
