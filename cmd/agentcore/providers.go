package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/macaron-software/agentcore/internal/gateway"
)

// buildProviders reads PROVIDER_<ID>_API_KEY / _BASE_URL / _MODEL triples
// for every ID named in AGENTCORE_PROVIDERS (comma-separated) and builds
// one HTTP chat provider per entry. A provider whose model is known to
// emit inline <think> reasoning blocks is named in
// AGENTCORE_THINK_STRIP_PROVIDERS so its output gets stripped before
// reaching an agent.
func buildProviders() ([]gateway.Provider, []string, error) {
	idsEnv := os.Getenv("AGENTCORE_PROVIDERS")
	if idsEnv == "" {
		return nil, nil, fmt.Errorf("AGENTCORE_PROVIDERS is required (comma-separated provider IDs)")
	}
	thinkers := splitCSV(os.Getenv("AGENTCORE_THINK_STRIP_PROVIDERS"))

	var providers []gateway.Provider
	var chain []string
	for _, id := range splitCSV(idsEnv) {
		upper := strings.ToUpper(id)
		apiKey := os.Getenv("PROVIDER_" + upper + "_API_KEY")
		baseURL := os.Getenv("PROVIDER_" + upper + "_BASE_URL")
		model := os.Getenv("PROVIDER_" + upper + "_MODEL")
		if baseURL == "" {
			return nil, nil, fmt.Errorf("PROVIDER_%s_BASE_URL is required", upper)
		}
		if model == "" {
			return nil, nil, fmt.Errorf("PROVIDER_%s_MODEL is required", upper)
		}

		limits := gateway.ProviderLimits{
			AcceptsTemperature: true,
			StripsThinkBlocks:  contains(thinkers, id),
		}
		providers = append(providers, gateway.NewHTTPChatProvider(id, baseURL, apiKey, model, limits))
		chain = append(chain, id)
	}

	if fallbackEnv := os.Getenv("FALLBACK_CHAIN"); fallbackEnv != "" {
		chain = splitCSV(fallbackEnv)
	}
	if def := os.Getenv("PROVIDER_DEFAULT"); def != "" {
		chain = append([]string{def}, without(chain, def)...)
	}
	return providers, chain, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func without(ss []string, s string) []string {
	out := make([]string, 0, len(ss))
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
