package render

import (
	"fmt"

	"github.com/retouchlab/eraser/internal/core/domain"
)

// Guard enforces request payload limits before any decode work.
type Guard struct {
	MaxBytes  int
	MaxImages int
}

func (g Guard) CheckCount(n int) error {
	if g.MaxImages > 0 && n > g.MaxImages {
		return domain.NewFault(domain.FaultValidation, fmt.Sprintf("too many images in request, limit is %d", g.MaxImages))
	}
	return nil
}

func (g Guard) CheckPayload(data []byte) error {
	if len(data) == 0 {
		return domain.NewFault(domain.FaultValidation, "image payload is empty")
	}
	if g.MaxBytes > 0 && len(data) > g.MaxBytes {
		return domain.NewFault(domain.FaultValidation, fmt.Sprintf("image exceeds the %d byte limit", g.MaxBytes))
	}
	_, err := DetectFormat(data)
	return err
}
