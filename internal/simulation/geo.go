package simulation

import "math"

const earthRadiusM = 6371000.0

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// distanceMeters is the haversine distance between two points.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLon := degreesToRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degreesToRadians(lat1))*math.Cos(degreesToRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// bearing is the initial heading in degrees (0 = north) from the first point
// towards the second.
func bearing(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat2 - lat1
	dLon := (lon2 - lon1) * math.Cos(degreesToRadians(lat1))
	deg := math.Atan2(dLon, dLat) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
