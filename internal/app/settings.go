package app

import (
	"ssot/internal/platform/config"
	"ssot/internal/resolution/service"
)

// engineSettings exposes the hot-reloaded engine config to the resolution service.
type engineSettings struct {
	loader *config.EngineLoader
}

func (s engineSettings) Settings() service.Settings {
	return settingsFromEngine(s.loader.Current())
}

func settingsFromEngine(e *config.Engine) service.Settings {
	return service.Settings{
		Thresholds:    e.Thresholds,
		NameAgreement: e.NameAgreement,
		BlockingKeys:  e.Kinds(),
		MaxBlockSize:  e.MaxBlockSize,
		AutoAccept:    e.AutoResolve.Accept,
		AutoMerge:     e.AutoResolve.Merge,
	}
}
