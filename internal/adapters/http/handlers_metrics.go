package httpadapter

import "net/http"

func (rt *Router) latestMetrics(w http.ResponseWriter, r *http.Request) {
	latest, err := rt.services.Insights.LatestMetrics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (rt *Router) confusionMatrix(w http.ResponseWriter, r *http.Request) {
	matrix, err := rt.services.Insights.ConfusionMatrix(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matrix)
}

func (rt *Router) confidenceDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := rt.services.Insights.ConfidenceDistribution(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

func (rt *Router) prCurves(w http.ResponseWriter, r *http.Request) {
	curves, err := rt.services.Insights.PRCurves(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, curves)
}

func (rt *Router) versionTrend(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	points, err := rt.services.Insights.VersionTrend(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}
