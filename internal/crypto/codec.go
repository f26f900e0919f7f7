package encryption

import (
	"sync"

	"github.com/rescale/brocoli/internal/form"
)

var userObscurer = sync.OnceValues(ForUser)

// FieldCodec obscures password fields with the current user's key.
func FieldCodec() form.Codec {
	return form.Codec{
		Encode: func(s string) (string, error) {
			o, err := userObscurer()
			if err != nil {
				return "", err
			}
			return o.Obscure(s)
		},
		Decode: func(s string) (string, error) {
			o, err := userObscurer()
			if err != nil {
				return "", err
			}
			return o.Reveal(s)
		},
	}
}
