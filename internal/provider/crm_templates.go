package provider

import (
	"context"
	"fmt"
	"net/url"
)

// CRMTemplateProvider implements TemplateProvider against the CRM's template
// subsystem, reusing the CRM client's transport and circuit breaker.
type CRMTemplateProvider struct {
	client *CRMClient
}

func NewCRMTemplateProvider(client *CRMClient) *CRMTemplateProvider {
	return &CRMTemplateProvider{client: client}
}

func (p *CRMTemplateProvider) GetTemplate(ctx context.Context, typeID, channelName, locale string) (*Template, error) {
	var out Template
	path := fmt.Sprintf("/internal/templates/%s/%s?locale=%s",
		url.PathEscape(typeID), url.PathEscape(channelName), url.QueryEscape(locale))
	if err := p.client.get(ctx, path, &out); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (p *CRMTemplateProvider) GetFallbackTemplate(ctx context.Context, channelName string) (*Template, error) {
	var out Template
	path := fmt.Sprintf("/internal/templates/fallback/%s", url.PathEscape(channelName))
	if err := p.client.get(ctx, path, &out); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (p *CRMTemplateProvider) TemplateExists(ctx context.Context, typeID, channelName string) (bool, error) {
	tmpl, err := p.GetTemplate(ctx, typeID, channelName, "")
	if err != nil {
		return false, err
	}
	return tmpl != nil, nil
}

// RenderTemplate renders server-side in the CRM. Data-access suppression is
// applied per referenced record before the render call.
func (p *CRMTemplateProvider) RenderTemplate(ctx context.Context, tmpl *Template, data map[string]any, opts RenderOptions) (RenderResult, error) {
	body := map[string]any{
		"template_id": tmpl.ID,
		"channel":     tmpl.Channel,
		"locale":      opts.Locale,
		"data":        filterAccessibleData(data, opts.DataAccess),
	}

	var out RenderResult
	if err := p.client.post(ctx, "/internal/templates/render", body, &out); err != nil {
		return RenderResult{}, err
	}
	return out, nil
}

// filterAccessibleData drops record references the recipient may not see. A
// reference is a map carrying "entity" and "entity_id" keys; everything else
// passes through untouched.
func filterAccessibleData(data map[string]any, checker DataAccessChecker) map[string]any {
	if checker == nil {
		return data
	}

	filtered := make(map[string]any, len(data))
	for k, v := range data {
		ref, ok := v.(map[string]any)
		if !ok {
			filtered[k] = v
			continue
		}
		entity, eok := ref["entity"].(string)
		entityID, iok := ref["entity_id"].(string)
		if eok && iok && !checker(entity, entityID) {
			continue
		}
		filtered[k] = v
	}
	return filtered
}
