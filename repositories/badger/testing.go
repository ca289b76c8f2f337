package badger

import "github.com/sirupsen/logrus"

// NewMemoryStore opens an in-memory store for tests. Caller must close it.
func NewMemoryStore() (*Store, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return Open("", true, logger)
}
