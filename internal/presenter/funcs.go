// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
)

// iconWidth is the number of terminal cells an icon plus its padding occupies.
const iconWidth = 3

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":     p.timeFormat,
		"localizedTime":  p.localizedTime,
		"naturalTime":    p.naturalTime,
		"floatFormat":    p.floatFormat,
		"emojiWithSpace": p.emojiWithSpace,
		"loc":            p.loc,
		"join":           strings.Join,
		"lc":             strings.ToLower,
		"uc":             strings.ToUpper,
	}
}

func (p *Presenter) loc(val string) string {
	if raw, ok := i18nVars[strings.ToLower(val)]; ok {
		return p.localizer.Get(raw)
	}
	return p.localizer.Get(val)
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) naturalTime(val time.Time) string {
	return p.humanizer.NaturalTime(val)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func (p *Presenter) floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

// emojiWithSpace pads an icon, so that the text after it starts at the same column for narrow
// and wide icons.
func (p *Presenter) emojiWithSpace(emoji string) string {
	pad := iconWidth - runewidth.StringWidth(emoji)
	if pad < 1 {
		pad = 1
	}
	return emoji + strings.Repeat(" ", pad)
}

// errorMessage returns the localized message for err.
func (p *Presenter) errorMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, msg := range errorMessages {
		if errors.Is(err, msg.err) {
			return p.localizer.Get(msg.id)
		}
	}
	return err.Error()
}
