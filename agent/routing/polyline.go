package routing

import "github.com/shieldx/companion/agent/location"

// DecodePolyline expands a Google encoded polyline into coordinates.
// Latitude and longitude deltas are interleaved, each packed as zig-zag
// varint chunks of 5 bits offset by 63.
func DecodePolyline(encoded string) []location.Coordinate {
	points := []location.Coordinate{}
	index, lat, lng := 0, 0, 0

	for index < len(encoded) {
		delta, next := decodeChunk(encoded, index)
		lat += delta
		index = next

		delta, next = decodeChunk(encoded, index)
		lng += delta
		index = next

		points = append(points, location.Coordinate{
			Lat: float64(lat) / 1e5,
			Lng: float64(lng) / 1e5,
		})
	}

	return points
}

func decodeChunk(encoded string, index int) (delta, next int) {
	result, shift := 0, 0

	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index
	}

	return result >> 1, index
}
