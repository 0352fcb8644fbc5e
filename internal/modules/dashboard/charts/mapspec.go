package charts

import "bindash-server/internal/config"

// MapSpec configures the Leaflet basemap and its single marker.
type MapSpec struct {
	Center      [2]float64 `json:"center"`
	Zoom        int        `json:"zoom"`
	TileURL     string     `json:"tileUrl"`
	MaxZoom     int        `json:"maxZoom"`
	Attribution string     `json:"attribution"`
	Marker      [2]float64 `json:"marker"`
	Icon        DivIcon    `json:"icon"`
	Options     MapOptions `json:"options"`
}

// MapOptions are the L.map interaction flags.
type MapOptions struct {
	ZoomControl     bool `json:"zoomControl"`
	ScrollWheelZoom bool `json:"scrollWheelZoom"`
	DoubleClickZoom bool `json:"doubleClickZoom"`
	BoxZoom         bool `json:"boxZoom"`
	Keyboard        bool `json:"keyboard"`
}

// DivIcon mirrors L.divIcon options.
type DivIcon struct {
	HTML       string     `json:"html"`
	ClassName  string     `json:"className"`
	IconSize   [2]int     `json:"iconSize"`
	IconAnchor [2]float64 `json:"iconAnchor"`
}

func NewMapSpec(cfg config.MapConfig) MapSpec {
	return MapSpec{
		Center:      [2]float64{cfg.CenterLat, cfg.CenterLng},
		Zoom:        cfg.Zoom,
		TileURL:     cfg.TileURL,
		MaxZoom:     cfg.MaxZoom,
		Attribution: cfg.Attribution,
		Marker:      [2]float64{cfg.MarkerLat, cfg.MarkerLng},
		Icon: DivIcon{
			HTML:       "📍",
			ClassName:  "custom-div-icon",
			IconSize:   [2]int{60, 60},
			IconAnchor: [2]float64{12.5, 12.5},
		},
		Options: MapOptions{
			ZoomControl:     true,
			ScrollWheelZoom: true,
			DoubleClickZoom: true,
			BoxZoom:         true,
		},
	}
}
