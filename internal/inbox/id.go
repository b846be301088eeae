package inbox

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const idSuffixLen = 9

// newMessageID returns msg_<unix ms>_<9 base36 chars>.
func newMessageID(now time.Time) string {
	u := uuid.New()
	suffix := strconv.FormatUint(binary.BigEndian.Uint64(u[8:]), 36)
	if len(suffix) < idSuffixLen {
		suffix = strings.Repeat("0", idSuffixLen-len(suffix)) + suffix
	}
	return fmt.Sprintf("msg_%d_%s", now.UnixMilli(), suffix[len(suffix)-idSuffixLen:])
}
