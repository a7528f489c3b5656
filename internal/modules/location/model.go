// README: Patient record as seen by the location resolver.
package location

import "homecare/internal/types"

type Patient struct {
	ID      types.ID
	Name    string
	Point   types.Point
	Address string
}

func (p Patient) Location() types.Location {
	return types.Location{Point: p.Point, Address: p.Address}
}
