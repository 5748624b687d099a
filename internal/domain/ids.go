package domain

// LocalIDBits is the width of a document id inside one index. The local
// search service packs the index position above these bits.
const LocalIDBits = 40

// MaxLocalID is the largest document id an index may serve.
const MaxLocalID = 1<<LocalIDBits - 1
