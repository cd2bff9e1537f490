package app

import (
	log "github.com/sirupsen/logrus"
)

// SetupLogger настраивает формат и уровень логирования для сервиса.
func SetupLogger(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(lvl)
	return nil
}
