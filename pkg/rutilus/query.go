package rutilus

// mapCatchesQuery is the GetCatchesInMapBoundingBox query. Field selection
// follows the upstream web client; the normalizer only depends on a subset
// and ignores the rest.
const mapCatchesQuery = `query GetCatchesInMapBoundingBox($boundingBox: BoundingBoxInputObject, $first: Int, $after: String, $caughtInMonths: [MonthEnum!], $speciesIds: [String!]) {
  mapArea(boundingBox: $boundingBox) {
    catches(first: $first, after: $after, caughtInMonths: $caughtInMonths, speciesIds: $speciesIds) {
      totalCount
      pageInfo {
        startCursor
        hasNextPage
        endCursor
      }
      edges {
        node {
          ...CatchId
          createdAt
          caughtAtGmt
          post {
            ...PostId
            catch {
              ...CatchId
              fishingWater {
                ...FishingWaterId
                displayName
                latitude
                longitude
              }
              species {
                ...SpeciesId
                displayName
              }
            }
            likesCount
            text {
              text
            }
            user {
              ...UserId
              nickname
            }
          }
          species {
            ...SpeciesId
            displayName
          }
        }
      }
    }
  }
}

fragment CatchId on Catch {
  _id: externalId
}

fragment FishingWaterId on FishingWater {
  _id: externalId
}

fragment SpeciesId on Species {
  _id: externalId
}

fragment PostId on Post {
  _id: externalId
}

fragment UserId on User {
  _id: externalId
}`
