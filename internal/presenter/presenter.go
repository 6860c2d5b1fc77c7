// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/humanize/locale/ja"
	"github.com/vorlif/spreak"

	"github.com/wneessen/waybar-locshare/internal/config"
	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/maps"
	"github.com/wneessen/waybar-locshare/internal/places"
	"github.com/wneessen/waybar-locshare/internal/tracker"
)

const OutputClass = "waybar-locshare"

// View is one of the mutually exclusive renderings of the module.
type View int

const (
	ViewMapLoading View = iota
	ViewMapError
	ViewAcquiring
	ViewPositionError
	ViewNoData
	ViewSuccess
)

func (v View) String() string {
	switch v {
	case ViewMapLoading:
		return "map-loading"
	case ViewMapError:
		return "map-error"
	case ViewAcquiring:
		return "acquiring"
	case ViewPositionError:
		return "position-error"
	case ViewNoData:
		return "no-data"
	case ViewSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Surface is the part of the map surface the presenter reads from.
type Surface interface {
	State() (maps.State, error)
	Describe(position geolocation.Coordinate, popup *places.Place) maps.Description
}

// Output is a single line of the waybar custom module protocol.
type Output struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
	Alt     string `json:"alt"`
}

type TemplateContext struct {
	View  View
	Error string

	Latitude   float64
	Longitude  float64
	Accuracy   float64
	Source     string
	UpdateTime time.Time
	ModeLabel  string

	HasPlace bool
	Place    places.Place
	HasPopup bool
	Popup    places.Place

	Map    maps.Description
	MapURL string

	IsDaytime   bool
	SunriseTime time.Time
	SunsetTime  time.Time
}

type Presenter struct {
	TextTemplates   map[View]*template.Template
	TooltipTemplate *template.Template

	humanizer *humanize.Humanizer
	localizer *spreak.Localizer
	logger    *logger.Logger
}

// New parses the view templates of the configuration. Every template is test-rendered against
// a sample context, so that broken templates are detected on startup.
func New(conf *config.Config, localizer *spreak.Localizer, log *logger.Logger) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New(), ja.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	pres := &Presenter{
		TextTemplates: make(map[View]*template.Template),
		humanizer:     collection.CreateHumanizer(localizer.Language()),
		localizer:     localizer,
		logger:        log,
	}

	texts := []struct {
		view View
		tpl  string
	}{
		{ViewMapLoading, conf.Templates.MapLoading},
		{ViewMapError, conf.Templates.MapError},
		{ViewAcquiring, conf.Templates.Acquiring},
		{ViewPositionError, conf.Templates.PositionError},
		{ViewNoData, conf.Templates.NoData},
		{ViewSuccess, conf.Templates.Text},
	}
	for _, text := range texts {
		tpl, err := template.New(text.view.String()).Funcs(pres.templateFuncMap()).Parse(text.tpl)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", text.view, err)
		}
		pres.TextTemplates[text.view] = tpl
	}
	tpl, err := template.New("tooltip").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Tooltip)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tooltip template: %w", err)
	}
	pres.TooltipTemplate = tpl

	sample := sampleContext()
	for view, tpl := range pres.TextTemplates {
		if err = tpl.Execute(bytes.NewBuffer(nil), sample); err != nil {
			return nil, fmt.Errorf("failed to render %s template: %w", view, err)
		}
	}
	if err = pres.TooltipTemplate.Execute(bytes.NewBuffer(nil), sample); err != nil {
		return nil, fmt.Errorf("failed to render tooltip template: %w", err)
	}

	return pres, nil
}

// SelectView decides which view represents the given state. Acquisition errors and the initial
// acquisition come first, the map surface only gates the views that show a map.
func SelectView(surface maps.State, st tracker.State) View {
	switch {
	case st.Err != nil:
		return ViewPositionError
	case !st.Position.IsSet() && st.Loading:
		return ViewAcquiring
	case surface == maps.StateLoading:
		return ViewMapLoading
	case surface == maps.StateFailed:
		return ViewMapError
	case !st.Position.IsSet():
		return ViewNoData
	default:
		return ViewSuccess
	}
}

// BuildContext derives the template context from the tracker state, the map surface and the
// popup selection.
func (p *Presenter) BuildContext(surface Surface, st tracker.State, selection *Selection, now time.Time) TemplateContext {
	surfaceState, surfaceErr := surface.State()
	tplCtx := TemplateContext{
		View:      SelectView(surfaceState, st),
		ModeLabel: modeLabels[st.Mode],
	}

	switch tplCtx.View {
	case ViewMapError:
		tplCtx.Error = p.errorMessage(surfaceErr)
	case ViewPositionError:
		tplCtx.Error = p.errorMessage(st.Err)
	}

	pos, ok := st.Position.Get()
	if !ok {
		return tplCtx
	}
	tplCtx.Latitude = pos.Lat
	tplCtx.Longitude = pos.Lon
	tplCtx.Accuracy = pos.Acc
	tplCtx.Source = pos.Source
	tplCtx.UpdateTime = st.LastUpdate

	if place, ok := st.Place.Get(); ok {
		tplCtx.HasPlace = true
		tplCtx.Place = place
	}
	var popup *places.Place
	if selection != nil {
		if place, ok := selection.Current(); ok {
			tplCtx.HasPopup = true
			tplCtx.Popup = place
			popup = &place
		}
	}
	tplCtx.Map = surface.Describe(pos.Coordinate, popup)
	tplCtx.MapURL = tplCtx.Map.URL

	tplCtx.SunriseTime, tplCtx.SunsetTime = sunrise.SunriseSunset(pos.Lat, pos.Lon, now.Year(), now.Month(),
		now.Day())
	tplCtx.IsDaytime = now.After(tplCtx.SunriseTime) && now.Before(tplCtx.SunsetTime)

	return tplCtx
}

// Render renders the view of tplCtx. It never fails: if a template can't be executed, a
// fallback message is rendered instead.
func (p *Presenter) Render(tplCtx TemplateContext) Output {
	output := Output{Class: tplCtx.View.String(), Alt: tplCtx.View.String()}
	if tplCtx.View == ViewSuccess {
		output.Alt = "night"
		if tplCtx.IsDaytime {
			output.Alt = "day"
		}
	}

	text, err := p.execute(p.TextTemplates[tplCtx.View], tplCtx)
	if err != nil {
		p.logger.Error("failed to render text template", slog.String("view", tplCtx.View.String()),
			logger.Err(err))
		return p.fallback(output)
	}
	output.Text, output.Tooltip = text, text

	if tplCtx.View == ViewSuccess {
		tooltip, err := p.execute(p.TooltipTemplate, tplCtx)
		if err != nil {
			p.logger.Error("failed to render tooltip template", logger.Err(err))
			return p.fallback(output)
		}
		output.Tooltip = tooltip
	}
	return output
}

func (p *Presenter) execute(tpl *template.Template, tplCtx TemplateContext) (string, error) {
	if tpl == nil {
		return "", fmt.Errorf("no template for view %s", tplCtx.View)
	}
	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, tplCtx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (p *Presenter) fallback(output Output) Output {
	output.Text = p.emojiWithSpace("⚠️") + p.localizer.Get(msgRenderFailed)
	output.Tooltip = output.Text
	output.Class = ViewMapError.String()
	return output
}

func sampleContext() TemplateContext {
	return TemplateContext{
		View:       ViewSuccess,
		ModeLabel:  modeLabels[tracker.ModeHigh],
		UpdateTime: time.Now(),
		HasPlace:   true,
		Place:      places.Place{Name: "sample", Types: []string{places.TypePointOfInterest}},
		HasPopup:   true,
		Popup:      places.Place{Name: "sample"},
		Error:      "sample",
	}
}
