package registry

// Kind identifies a processing capability backed by a registry entry.
type Kind string

const (
	KindDetection         Kind = "detection"
	KindUpscale           Kind = "upscale"
	KindFaceRestore       Kind = "face_restore"
	KindSegmentation      Kind = "segmentation"
	KindBackgroundRemoval Kind = "background_removal"
	KindDenoise           Kind = "denoise"
	KindAutoEnhance       Kind = "auto_enhance"
	KindSharpen           Kind = "sharpen"
	KindObjectRemoval     Kind = "object_removal"
)

// AllKinds lists every capability the service exposes.
func AllKinds() []Kind {
	return []Kind{
		KindDetection,
		KindUpscale,
		KindFaceRestore,
		KindSegmentation,
		KindBackgroundRemoval,
		KindDenoise,
		KindAutoEnhance,
		KindSharpen,
		KindObjectRemoval,
	}
}
