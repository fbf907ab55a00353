package handlers

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"mystore/internal/engine/unsubscribe"
)

var unsubscribePages = template.Must(template.New("unsubscribe").Parse(`
{{define "layout"}}<!doctype html>
<html><head><meta charset="utf-8"><title>Unsubscribe</title></head>
<body>{{template "body" .}}</body></html>{{end}}
`))

var (
	confirmPage = template.Must(template.Must(unsubscribePages.Clone()).Parse(`{{define "body"}}
<h1>Unsubscribe</h1>
<p>Stop sending product mail to <strong>{{.Email}}</strong>?</p>
<form method="post" action="/unsubscribe">
<input type="hidden" name="email" value="{{.Email}}">
<input type="hidden" name="expires" value="{{.Expires}}">
<input type="hidden" name="signature" value="{{.Signature}}">
<input type="hidden" name="form_token" value="{{.FormToken}}">
<button type="submit">Unsubscribe</button>
</form>{{end}}`))

	resultPage = template.Must(template.Must(unsubscribePages.Clone()).Parse(`{{define "body"}}
{{if .Found}}<h1>You have been unsubscribed</h1>
<p>{{.Email}} will no longer receive product mail.</p>
{{else}}<h1>Nothing to do</h1>
<p>There is no active subscription for {{.Email}}.</p>{{end}}{{end}}`))

	invalidPage = template.Must(template.Must(unsubscribePages.Clone()).Parse(`{{define "body"}}
<h1>Link not valid</h1>
<p>This unsubscribe link is invalid or has expired.</p>{{end}}`))
)

type confirmView struct {
	Email     string
	Expires   string
	Signature string
	FormToken string
}

type resultView struct {
	Email string
	Found bool
}

type UnsubscribeHandler struct {
	signer  *unsubscribe.Signer
	service *unsubscribe.Service
}

func NewUnsubscribeHandler(signer *unsubscribe.Signer, service *unsubscribe.Service) *UnsubscribeHandler {
	return &UnsubscribeHandler{signer: signer, service: service}
}

// OneClick serves List-Unsubscribe-Post requests from mail clients. It needs
// no session and no body.
func (h *UnsubscribeHandler) OneClick(w http.ResponseWriter, r *http.Request) {
	email, err := h.signer.Verify(r.URL.Query())
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if _, err := h.service.Unsubscribe(r.Context(), email); err != nil {
		log.Error().Err(err).Msg("one-click unsubscribe failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *UnsubscribeHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email, err := h.signer.Verify(q)
	if err != nil {
		render(w, http.StatusForbidden, invalidPage, nil)
		return
	}

	render(w, http.StatusOK, confirmPage, confirmView{
		Email:     email,
		Expires:   q.Get("expires"),
		Signature: q.Get("signature"),
		FormToken: h.signer.FormToken(q.Get("signature")),
	})
}

func (h *UnsubscribeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		render(w, http.StatusBadRequest, invalidPage, nil)
		return
	}

	values := url.Values{
		"email":     {r.PostForm.Get("email")},
		"expires":   {r.PostForm.Get("expires")},
		"signature": {r.PostForm.Get("signature")},
	}
	email, err := h.signer.Verify(values)
	if err != nil || !h.signer.VerifyFormToken(values.Get("signature"), r.PostForm.Get("form_token")) {
		render(w, http.StatusForbidden, invalidPage, nil)
		return
	}

	found, err := h.service.Unsubscribe(r.Context(), email)
	if err != nil {
		log.Error().Err(err).Msg("unsubscribe failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	render(w, http.StatusOK, resultPage, resultView{Email: email, Found: found})
}

func render(w http.ResponseWriter, status int, page *template.Template, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.ExecuteTemplate(w, "layout", data); err != nil {
		log.Error().Err(err).Msg("failed to render page")
	}
}
