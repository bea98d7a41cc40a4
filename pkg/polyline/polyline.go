// Package polyline decodes and encodes Google encoded polylines at 1e5 precision.
package polyline

import (
	"math"

	"github.com/roomcommute/roomcommute/pkg/geo"
)

// Decode turns an encoded polyline into points. Truncated input yields the
// points decoded before the truncation.
func Decode(encoded string) []geo.Point {
	if encoded == "" {
		return nil
	}

	var (
		points   []geo.Point
		lat, lng int
		i        int
	)
	for i < len(encoded) {
		dLat, next, ok := readValue(encoded, i)
		if !ok {
			break
		}
		dLng, next, ok := readValue(encoded, next)
		if !ok {
			break
		}
		i = next
		lat += dLat
		lng += dLng
		points = append(points, geo.Point{Lat: float64(lat) / 1e5, Lng: float64(lng) / 1e5})
	}
	return points
}

func readValue(s string, i int) (value, next int, ok bool) {
	var shift, acc int
	for i < len(s) {
		b := int(s[i]) - 63
		i++
		acc |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if acc&1 != 0 {
				return ^(acc >> 1), i, true
			}
			return acc >> 1, i, true
		}
	}
	return 0, i, false
}

// Encode turns points into an encoded polyline.
func Encode(points []geo.Point) string {
	if len(points) == 0 {
		return ""
	}

	out := make([]byte, 0, len(points)*6)
	var prevLat, prevLng int
	for _, p := range points {
		lat := int(math.Round(p.Lat * 1e5))
		lng := int(math.Round(p.Lng * 1e5))
		out = writeValue(out, lat-prevLat)
		out = writeValue(out, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return string(out)
}

func writeValue(buf []byte, v int) []byte {
	if v < 0 {
		v = ^(v << 1)
	} else {
		v <<= 1
	}
	for v >= 0x20 {
		buf = append(buf, byte((v&0x1f)|0x20)+63)
		v >>= 5
	}
	return append(buf, byte(v)+63)
}
