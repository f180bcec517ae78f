package log

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// levelsUpTo returns every logrus level at least as severe as the named one.
func levelsUpTo(level string) ([]logrus.Level, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %s", level)
	}
	i := sort.Search(len(logrus.AllLevels), func(i int) bool {
		return logrus.AllLevels[i] > lvl
	})
	return logrus.AllLevels[:i], nil
}
