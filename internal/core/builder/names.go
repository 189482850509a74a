package builder

import (
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/melih/bpimage/internal/core/ports"
)

// PetNames generates three word build names such as "wildly_happy_otter".
type PetNames struct{}

var _ ports.NameGenerator = PetNames{}

func (PetNames) Generate() string {
	return petname.Generate(3, "_")
}
