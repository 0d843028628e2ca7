package server

import (
	"bytes"
	"encoding/base64"
	"html/template"
	"io"

	"github.com/patiee/giftstorage/server/model"
)

const frameHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Give storage</title>
<meta property="og:title" content="Give storage">
<meta property="og:image" content="{{.Image}}">
<meta property="fc:frame" content="vNext">
<meta property="fc:frame:image" content="{{.Image}}">
<meta property="fc:frame:image:aspect_ratio" content="1.91:1">
<meta property="fc:frame:post_url" content="{{.PostURL}}">
{{- with .Input}}
<meta property="fc:frame:input:text" content="{{.}}">
{{- end}}
{{- range .Buttons}}
<meta property="fc:frame:button:{{.Index}}" content="{{.Label}}">
<meta property="fc:frame:button:{{.Index}}:action" content="{{.Action}}">
{{- if .Target}}
<meta property="fc:frame:button:{{.Index}}:target" content="{{.Target}}">
{{- end}}
{{- if .PostURL}}
<meta property="fc:frame:button:{{.Index}}:post_url" content="{{.PostURL}}">
{{- end}}
{{- end}}
{{- with .State}}
<meta property="fc:frame:state" content="{{.}}">
{{- end}}
</head>
<body></body>
</html>
`

const cardSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="1200" height="630" viewBox="0 0 1200 630">
<rect width="1200" height="630" fill="black"/>
{{- if .AvatarURL}}
<clipPath id="pfp"><circle cx="600" cy="160" r="100"/></clipPath>
<image href="{{.AvatarURL}}" x="500" y="60" width="200" height="200" clip-path="url(#pfp)"/>
{{- end}}
<text x="600" y="{{.TitleY}}" fill="white" font-family="sans-serif" font-size="60" text-anchor="middle">{{.Title}}</text>
{{- range .Lines}}
<text x="600" y="{{.Y}}" fill="white" font-family="sans-serif" font-size="36" text-anchor="middle">{{.Text}}</text>
{{- end}}
</svg>`

var (
	frameTemplate = template.Must(template.New("frame").Parse(frameHTML))
	cardTemplate  = template.Must(template.New("card").Parse(cardSVG))
)

type metaButton struct {
	Index   int
	Label   string
	Action  model.ButtonAction
	Target  string
	PostURL string
}

type framePage struct {
	Image   string
	PostURL string
	Input   string
	Buttons []metaButton
	State   string
}

type cardLine struct {
	Y    int
	Text string
}

type cardView struct {
	AvatarURL string
	Title     string
	TitleY    int
	Lines     []cardLine
}

// imageSource returns the hosted URL or the card rendered as an SVG data URI.
func imageSource(img model.Image) (string, error) {
	if img.Card == nil {
		return img.URL, nil
	}

	view := cardView{AvatarURL: img.Card.AvatarURL, Title: img.Card.Title, TitleY: 280}
	if view.AvatarURL != "" {
		view.TitleY = 340
	}
	y := view.TitleY + 70
	for _, l := range img.Card.Lines {
		view.Lines = append(view.Lines, cardLine{Y: y, Text: l})
		y += 50
	}

	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// writeFrame renders f as frame meta tags.
func writeFrame(w io.Writer, f model.Frame) error {
	image, err := imageSource(f.Image)
	if err != nil {
		return err
	}

	page := framePage{Image: image, PostURL: f.PostURL, State: f.State}
	for _, in := range f.Intents {
		if in.Kind == model.IntentTextInput {
			page.Input = in.Label
			continue
		}
		action := in.Action
		if action == model.ButtonReset {
			action = model.ButtonPost
		}
		page.Buttons = append(page.Buttons, metaButton{
			Index:   len(page.Buttons) + 1,
			Label:   in.Label,
			Action:  action,
			Target:  in.Target,
			PostURL: in.PostURL,
		})
	}
	return frameTemplate.Execute(w, page)
}
