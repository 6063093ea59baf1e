package embedding

// BBoxArea returns the area of a [x1, y1, x2, y2] box, or 0 for malformed boxes.
func BBoxArea(bbox []float64) float64 {
	if len(bbox) != 4 || bbox[2] <= bbox[0] || bbox[3] <= bbox[1] {
		return 0
	}
	return (bbox[2] - bbox[0]) * (bbox[3] - bbox[1])
}

// ComputeIoU calculates Intersection over Union between two [x1, y1, x2, y2] boxes.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])
	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := BBoxArea(bbox1) + BBoxArea(bbox2) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// RelativeBBox converts a pixel box to 0-1 coordinates of a width x height frame.
func RelativeBBox(bbox []float64, width, height int) []float64 {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return bbox
	}
	return []float64{
		bbox[0] / float64(width),
		bbox[1] / float64(height),
		bbox[2] / float64(width),
		bbox[3] / float64(height),
	}
}

// PrimaryFace picks the face a kiosk user is presenting: the largest box,
// with detection score breaking ties. Returns nil for no faces.
func PrimaryFace(faces []Face) *Face {
	var best *Face
	var bestArea float64
	for i := range faces {
		f := &faces[i]
		area := BBoxArea(f.BBox)
		if best == nil || area > bestArea || (area == bestArea && f.DetScore > best.DetScore) {
			best, bestArea = f, area
		}
	}
	return best
}
