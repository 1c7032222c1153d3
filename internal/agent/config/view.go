package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/vitaliisemenov/agentcore/internal/agent/plugincontext"
)

// ViperView adapts a *viper.Viper to plugincontext.ConfigView.
type ViperView struct {
	v *viper.Viper
}

// NewMapView builds a ConfigView over a plain map, the shape a
// ComponentSpec.Raw section arrives in. Used to hand each factory a scoped
// view without exposing the rest of the document.
func NewMapView(data map[string]any) (*ViperView, error) {
	v := viper.New()
	if data != nil {
		if err := v.MergeConfigMap(data); err != nil {
			return nil, err
		}
	}
	return &ViperView{v: v}, nil
}

// NewViperView wraps an existing viper instance directly (used for the
// whole-document sections like Metrics/Telemetrics/PerformanceCounter).
func NewViperView(v *viper.Viper) *ViperView {
	if v == nil {
		v = viper.New()
	}
	return &ViperView{v: v}
}

func (w *ViperView) GetString(key string) string        { return w.v.GetString(key) }
func (w *ViperView) GetInt(key string) int              { return w.v.GetInt(key) }
func (w *ViperView) GetBool(key string) bool            { return w.v.GetBool(key) }
func (w *ViperView) GetDuration(key string) time.Duration { return w.v.GetDuration(key) }
func (w *ViperView) GetStringSlice(key string) []string { return w.v.GetStringSlice(key) }
func (w *ViperView) Unmarshal(out any) error            { return w.v.Unmarshal(out) }

// Sub returns the nested view at key, or an empty view if absent.
func (w *ViperView) Sub(key string) plugincontext.ConfigView {
	sub := w.v.Sub(key)
	if sub == nil {
		sub = viper.New()
	}
	return &ViperView{v: sub}
}
