// Package texgen generates the procedural RGBA8 textures the plant and ground materials sample.
package texgen

// Size is the edge length in texels of every generated layer.
const Size = 64

// Plants returns one striped layer per plant type, layers stacked in order.
//
// Parameters:
//   - layers: number of plant types
//
// Returns:
//   - []byte: Size*Size*4*layers bytes of RGBA8 texels
func Plants(layers int) []byte {
	out := make([]byte, 0, Size*Size*4*layers)
	for l := 0; l < layers; l++ {
		g := byte(120 + (l*40)%120)
		for y := 0; y < Size; y++ {
			for x := 0; x < Size; x++ {
				shade := byte(0)
				if (x+l*7)%16 < 3 {
					shade = 40
				}
				out = append(out, byte(30+l*25)%200, g-shade, byte(40+l*15)%120, 255)
			}
		}
	}
	return out
}

// Ground returns the single checkered ground layer.
func Ground() []byte {
	out := make([]byte, 0, Size*Size*4)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			v := byte(90)
			if (x/8+y/8)%2 == 0 {
				v = 110
			}
			out = append(out, v, v-20, v-50, 255)
		}
	}
	return out
}
