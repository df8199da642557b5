package exif

// Pointer tags linking the IFDs together.
const (
	tagExifIFD = 0x8769
	tagGPSIFD  = 0x8825
	tagIopIFD  = 0xA005
)

// Tag-id to name tables, scoped per sub-directory. Only tags the record
// mapping or downstream consumers care about are named; unnamed tags are
// skipped during the walk.
var imageTags = map[uint16]string{
	0x0100: "ImageWidth",
	0x0101: "ImageLength",
	0x010F: "Make",
	0x0110: "Model",
	0x0112: "Orientation",
	0x011A: "XResolution",
	0x011B: "YResolution",
	0x0128: "ResolutionUnit",
	0x0131: "Software",
	0x0132: "DateTime",
	0x013B: "Artist",
	0x8298: "Copyright",
	tagExifIFD: "ExifTag",
	tagGPSIFD:  "GPSTag",
}

var photoTags = map[uint16]string{
	0x829A: "ExposureTime",
	0x829D: "FNumber",
	0x8822: "ExposureProgram",
	0x8827: "ISOSpeedRatings",
	0x9003: "DateTimeOriginal",
	0x9004: "DateTimeDigitized",
	0x9201: "ShutterSpeedValue",
	0x9202: "ApertureValue",
	0x9204: "ExposureBiasValue",
	0x9207: "MeteringMode",
	0x9209: "Flash",
	0x920A: "FocalLength",
	0xA002: "PixelXDimension",
	0xA003: "PixelYDimension",
	0xA403: "WhiteBalance",
	0xA405: "FocalLengthIn35mmFilm",
	0xA433: "LensMake",
	0xA434: "LensModel",
	tagIopIFD: "InteroperabilityTag",
}

var gpsTags = map[uint16]string{
	0x0000: "GPSVersionID",
	0x0001: "GPSLatitudeRef",
	0x0002: "GPSLatitude",
	0x0003: "GPSLongitudeRef",
	0x0004: "GPSLongitude",
	0x0005: "GPSAltitudeRef",
	0x0006: "GPSAltitude",
	0x001D: "GPSDateStamp",
}

var iopTags = map[uint16]string{
	0x0001: "InteroperabilityIndex",
	0x0002: "InteroperabilityVersion",
}

var meteringModes = map[int64]string{
	0:   "Unknown",
	1:   "Average",
	2:   "Center-weighted average",
	3:   "Spot",
	4:   "Multi-spot",
	5:   "Pattern",
	6:   "Partial",
	255: "Other",
}

var whiteBalanceModes = map[int64]string{
	0: "Auto",
	1: "Manual",
}

var flashModes = map[int64]string{
	0x00: "Did not fire",
	0x01: "Fired",
	0x05: "Fired, return not detected",
	0x07: "Fired, return detected",
	0x08: "On, did not fire",
	0x09: "On, fired",
	0x0D: "On, return not detected",
	0x0F: "On, return detected",
	0x10: "Off, did not fire",
	0x18: "Auto, did not fire",
	0x19: "Auto, fired",
	0x1D: "Auto, fired, return not detected",
	0x1F: "Auto, fired, return detected",
	0x20: "No flash function",
	0x41: "Fired, red-eye reduction",
	0x45: "Fired, red-eye reduction, return not detected",
	0x47: "Fired, red-eye reduction, return detected",
	0x49: "On, red-eye reduction",
	0x59: "Auto, fired, red-eye reduction",
}
