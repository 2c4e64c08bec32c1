package jobs

import "path/filepath"

// VideoFileName is the artifact the render tool writes into the job directory.
const VideoFileName = "output_collision.mp4"

// Dir returns the storage namespace owned by this job.
func (j *Job) Dir(root string) string {
	return filepath.Join(root, j.ID)
}

// UploadsDir holds the two original image payloads.
func (j *Job) UploadsDir(root string) string {
	return filepath.Join(j.Dir(root), "uploads")
}

// UploadPath returns the stored image path for the given object key.
func (j *Job) UploadPath(root, objectKey string) string {
	return filepath.Join(j.UploadsDir(root), objectKey+".png")
}

// ObjectDir holds per-object intermediate artifacts.
func (j *Job) ObjectDir(root, objectKey string) string {
	return filepath.Join(j.Dir(root), objectKey)
}

// CleanImagePath is the background-removed variant of the uploaded image.
func (j *Job) CleanImagePath(root, objectKey string) string {
	return filepath.Join(j.ObjectDir(root, objectKey), "clean.png")
}

// MeshDir is the output directory handed to the mesh-generation tool.
func (j *Job) MeshDir(root, objectKey string) string {
	return filepath.Join(j.ObjectDir(root, objectKey), "mesh")
}

// OutputVideoPath is where the render tool writes the final artifact.
func (j *Job) OutputVideoPath(root string) string {
	return filepath.Join(j.Dir(root), VideoFileName)
}

// MetadataPath is the best-effort on-disk mirror of the job record.
func (j *Job) MetadataPath(root string) string {
	return filepath.Join(j.Dir(root), "job.json")
}
