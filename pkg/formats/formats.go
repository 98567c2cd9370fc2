// Package formats provides parsers for skeletal animation file formats.
//
// MD5 mesh and anim files (md5mesh.go, md5anim.go) describe flat joint
// hierarchies where parents precede children. glTF skins (gltf.go) describe
// joint trees with inverse bind matrices and keyframe channels.
package formats
