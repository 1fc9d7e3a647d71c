package manifold

// Name is the backend name recorded in documents.
const Name = "manifold"
