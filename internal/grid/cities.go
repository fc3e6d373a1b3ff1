package grid

// Cities is the built-in sweep list for the seed command. Bounds are the
// south-west and north-east corners of each metro area.
var Cities = map[string]Bounds{
	"atlanta": {StartLat: 33.588311, StartLng: -84.538422, EndLat: 33.872696, EndLng: -84.295349},
	"slc":     {StartLat: 40.495004, StartLng: -112.100372, EndLat: 40.816927, EndLng: -111.770782},
	"houston": {StartLat: 29.485034, StartLng: -95.910645, EndLat: 30.287532, EndLng: -95.114136},
	"philly":  {StartLat: 39.837014, StartLng: -75.279694, EndLat: 40.151588, EndLng: -74.940491},
	"raleigh": {StartLat: 35.727284, StartLng: -78.751373, EndLat: 35.827835, EndLng: -78.587265},
}
