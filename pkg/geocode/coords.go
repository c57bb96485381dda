package geocode

// The canvas is an equirectangular projection of the world map. Pixel (0,0)
// is the north-west corner; shards are fixed 32x32 pixel territories
// addressed on the same grid.
const (
	CanvasWidth  = 2048
	CanvasHeight = 1024
	ShardSize    = 32
)

// PixelLatLon maps a pixel cell to the latitude/longitude of its center.
func PixelLatLon(px, py uint16) (lat, lon float64) {
	lon = (float64(px)+0.5)/CanvasWidth*360 - 180
	lat = 90 - (float64(py)+0.5)/CanvasHeight*180
	return lat, lon
}

// ShardLatLon maps a shard to the latitude/longitude of its center.
func ShardLatLon(shardX, shardY int32) (lat, lon float64) {
	lon = (float64(shardX)*ShardSize+ShardSize/2)/CanvasWidth*360 - 180
	lat = 90 - (float64(shardY)*ShardSize+ShardSize/2)/CanvasHeight*180
	return lat, lon
}
