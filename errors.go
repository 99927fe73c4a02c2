package affil

import (
	"github.com/adambuttrick/affil/crf"
	"github.com/adambuttrick/affil/internal/storage"
	"github.com/adambuttrick/affil/tagger"
)

// Error categories. Check them with errors.Is.
var (
	ErrIO             = storage.ErrIO
	ErrTraining       = crf.ErrTraining
	ErrInference      = crf.ErrInference
	ErrSchemaMismatch = tagger.ErrSchemaMismatch
)
